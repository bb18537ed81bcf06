package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("business_id", "123"),
		attribute.String("invoice_id", "456"),
		attribute.String("source", "quote"),
		attribute.String("to", "overdue"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "source" {
		t.Fatalf("expected source to be retained")
	}
}

func TestRecordInvoiceCreatedExportsCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "quoteflow-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordInvoiceCreated(ctx, "quote")
	m.RecordInvoiceCreated(ctx, "quote")
	m.RecordNumberRetry(ctx, "invoice")
	m.RecordInvoiceStatusChange(ctx, "sent", "overdue")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	require.Equal(t, int64(2), totals["quoteflow_invoices_created_total"])
	require.Equal(t, int64(1), totals["quoteflow_invoice_number_retries_total"])
	require.Equal(t, int64(1), totals["quoteflow_invoice_status_changes_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoiceCreated(context.Background(), "direct")
	m.RecordInvoiceFailure(context.Background(), "direct", "validation")
	m.RecordInvoiceStatusChange(context.Background(), "draft", "sent")
}
