package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the document pipeline counters. A nil *Metrics records
// nothing.
type Metrics struct {
	invoicesCreated      metric.Int64Counter
	invoiceFailures      metric.Int64Counter
	invoiceStatusChanges metric.Int64Counter
	numberRetries        metric.Int64Counter
	quoteTransitions     metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "quoteflow"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.invoicesCreated, "quoteflow_invoices_created_total", "Invoices created, by source."},
		{&m.invoiceFailures, "quoteflow_invoice_create_failures_total", "Invoice creations rejected or failed, by source and reason."},
		{&m.invoiceStatusChanges, "quoteflow_invoice_status_changes_total", "Invoice lifecycle transitions."},
		{&m.numberRetries, "quoteflow_invoice_number_retries_total", "Lost compare-and-swap rounds while allocating document numbers."},
		{&m.quoteTransitions, "quoteflow_quote_transitions_total", "Quotes entering a status."},
		{&m.rateLimitDenied, "quoteflow_rate_limit_denied_total", "Document create requests refused by the rate limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordInvoiceCreated counts invoices by creation path, quote or direct.
func (m *Metrics) RecordInvoiceCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	add(ctx, m.invoicesCreated, attribute.String("source", source))
}

func (m *Metrics) RecordInvoiceFailure(ctx context.Context, source, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.invoiceFailures,
		attribute.String("source", source),
		attribute.String("reason", reason),
	)
}

func (m *Metrics) RecordInvoiceStatusChange(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	add(ctx, m.invoiceStatusChanges,
		attribute.String("from", from),
		attribute.String("to", to),
	)
}

func (m *Metrics) RecordNumberRetry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	add(ctx, m.numberRetries, attribute.String("kind", kind))
}

func (m *Metrics) RecordQuoteTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	add(ctx, m.quoteTransitions, attribute.String("status", status))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitDenied,
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	for i, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			attrs[i] = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// Business and document ids never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"reason":      {},
	"kind":        {},
	"status":      {},
	"from":        {},
	"to":          {},
}

// FilterAttributes keeps only the low-cardinality label keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
