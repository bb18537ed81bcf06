package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/stretchr/testify/assert"
)

func TestFailureReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"deadline":      {context.DeadlineExceeded, ReasonTimeout},
		"canceled":      {fmt.Errorf("wrap: %w", context.Canceled), ReasonTimeout},
		"forbidden":     {authorization.ErrForbidden, ReasonForbidden},
		"lock timeout":  {&pgconn.PgError{Code: "55P03"}, ReasonLockTimeout},
		"serialization": {fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), ReasonSerialization},
		"unique":        {&pgconn.PgError{Code: "23505"}, ReasonDatabase},
		"other":         {fmt.Errorf("boom"), ReasonOther},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, FailureReason(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, Retryable(authorization.ErrForbidden))
	assert.False(t, Retryable(fmt.Errorf("nope")))
	assert.False(t, Retryable(nil))
}

func TestSchedulerCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "quoteflow", Environment: "test"})

	m.AddProcessed("mark_overdue", 3)
	m.AddProcessed("mark_overdue", 0)
	m.IncSkipped("mark_overdue", ReasonStateChanged)
	m.IncInvoiceTransition("sent", "overdue")
	m.ObserveRun("mark_overdue", time.Second, nil)
	m.ObserveRun("mark_overdue", time.Second, context.DeadlineExceeded)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.processed.WithLabelValues("mark_overdue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.skipped.WithLabelValues("mark_overdue", ReasonStateChanged)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("sent", "overdue")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("mark_overdue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.timeouts.WithLabelValues("mark_overdue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("mark_overdue", ReasonTimeout)))
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveRun("x", time.Second, context.Canceled)
	m.AddProcessed("x", 1)
	m.IncSkipped("x", ReasonStateChanged)
	m.IncInvoiceTransition("sent", "overdue")
}
