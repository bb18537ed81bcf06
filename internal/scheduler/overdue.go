package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/clock"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/scheduler/guard"
	"go.uber.org/zap"
)

// overdueCandidate is the slice of an invoice row the sweep needs.
type overdueCandidate struct {
	ID         snowflake.ID
	BusinessID snowflake.ID
	Status     invoicedomain.InvoiceStatus
	DueDate    time.Time
	BalanceDue decimal.Decimal
}

// MarkOverdueInvoicesJob moves sent invoices whose due date has passed to
// overdue. Each move goes through the invoice service as the system actor,
// so the transition rules, row lock and audit trail are the same as for a
// manual status change.
func (s *Scheduler) MarkOverdueInvoicesJob(ctx context.Context) error {
	ctx, r, owner := s.beginRun(ctx, jobMarkOverdue)
	if owner {
		defer s.finishRun(ctx, r)
	}
	today := clock.Today(s.clock)

	var (
		jobErr error
		after  snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		batch, err := s.overdueBatch(ctx, today, after)
		if err != nil {
			s.reportFailure(ctx, r, "scheduler.overdue.fetch_failed", err)
			return errors.Join(jobErr, err)
		}

		moved := 0
		for _, candidate := range batch {
			after = candidate.ID
			ok, err := s.markOverdue(ctx, r, candidate, today)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
			}
			if ok {
				moved++
			}
		}
		r.processed += moved
		s.metrics.AddProcessed(jobMarkOverdue, moved)

		if len(batch) < s.cfg.BatchSize {
			return jobErr
		}
	}
}

// overdueBatch pages through sent invoices past due in id order, starting
// after the last id seen.
func (s *Scheduler) overdueBatch(ctx context.Context, today time.Time, after snowflake.ID) ([]overdueCandidate, error) {
	var rows []overdueCandidate
	err := s.db.WithContext(ctx).
		Table("invoices").
		Select("id, business_id, status, due_date, balance_due").
		Where("status = ? AND due_date < ? AND id > ?", invoicedomain.InvoiceStatusSent, today, after).
		Order("id ASC").
		Limit(s.cfg.BatchSize).
		Scan(&rows).Error
	return rows, err
}

func (s *Scheduler) markOverdue(ctx context.Context, r *run, candidate overdueCandidate, today time.Time) (bool, error) {
	if err := guard.EnsureInvoiceCanBecomeOverdue(candidate.Status, candidate.DueDate, candidate.BalanceDue.IsPositive(), today); err != nil {
		r.skipped++
		s.metrics.IncSkipped(jobMarkOverdue, err.Error())
		return false, nil
	}

	ctx = actAs(ctx, candidate.BusinessID)
	_, err := s.invoiceSvc.ChangeStatus(ctx, invoicedomain.ChangeStatusRequest{
		ID:     candidate.ID.String(),
		Status: string(invoicedomain.InvoiceStatusOverdue),
	})
	switch {
	case err == nil:
		s.metrics.IncInvoiceTransition(string(invoicedomain.InvoiceStatusSent), string(invoicedomain.InvoiceStatusOverdue))
		s.logger(ctx).Info("invoice.overdue",
			zap.String("invoice_id", candidate.ID.String()),
			zap.String("due_date", candidate.DueDate.Format(time.DateOnly)),
		)
		return true, nil
	case errors.Is(err, invoicedomain.ErrInvalidState), errors.Is(err, invoicedomain.ErrNotFound):
		// Paid or cancelled between the read and the locked transition.
		r.skipped++
		s.metrics.IncSkipped(jobMarkOverdue, obsmetrics.ReasonStateChanged)
		return false, nil
	default:
		s.reportFailure(ctx, r, "scheduler.overdue.transition_failed", err,
			zap.String("invoice_id", candidate.ID.String()),
		)
		return false, err
	}
}
