package service

import (
	"context"
	"slices"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/authorization"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"gorm.io/gorm"
)

// allowedTransitions lists the moves ChangeStatus accepts. Payment states are
// reached only by recording payments.
var allowedTransitions = map[invoicedomain.InvoiceStatus][]invoicedomain.InvoiceStatus{
	invoicedomain.InvoiceStatusDraft:   {invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusCancelled},
	invoicedomain.InvoiceStatusSent:    {invoicedomain.InvoiceStatusOverdue, invoicedomain.InvoiceStatusCancelled},
	invoicedomain.InvoiceStatusOverdue: {invoicedomain.InvoiceStatusCancelled},
}

func canTransition(from, to invoicedomain.InvoiceStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Update edits header fields of a draft invoice. Status changes are refused
// here and must go through ChangeStatus.
func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectInvoice, authorization.ActionInvoiceUpdate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoiceID, err := parseID(req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if req.Status != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrStatusChangeViaUpdate
	}

	var (
		updated invoicedomain.Invoice
		changed []string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindForUpdate(ctx, tx, businessID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrNotFound
		}
		if current.Status != invoicedomain.InvoiceStatusDraft {
			return &invoicedomain.StateError{Op: "update", Status: current.Status}
		}

		next := *current
		fields := map[string]any{}
		if req.IssueDate != nil {
			next.IssueDate, err = parseDate(*req.IssueDate)
			if err != nil {
				return err
			}
			fields["issue_date"] = next.IssueDate
		}
		if req.DueDate != nil {
			next.DueDate, err = parseDate(*req.DueDate)
			if err != nil {
				return err
			}
			fields["due_date"] = next.DueDate
		}
		if next.DueDate.Before(next.IssueDate) {
			return invoicedomain.ErrDueBeforeIssue
		}
		if req.Currency != nil {
			next.Currency, err = s.normalizeCurrency(*req.Currency, "")
			if err != nil {
				return err
			}
			fields["currency"] = next.Currency
		}
		if req.Notes != nil {
			next.Notes = strings.TrimSpace(*req.Notes)
			fields["notes"] = next.Notes
		}
		if req.Terms != nil {
			next.Terms = strings.TrimSpace(*req.Terms)
			fields["terms"] = next.Terms
		}
		if len(fields) == 0 {
			updated = *current
			return nil
		}

		if totals.Places(next.Currency) != totals.Places(current.Currency) {
			if err := s.repriceItems(ctx, tx, &next); err != nil {
				return err
			}
			fields["subtotal"] = next.Subtotal
			fields["discount_total"] = next.DiscountTotal
			fields["vat_total"] = next.VATTotal
			fields["total"] = next.Total
			fields["balance_due"] = next.BalanceDue
		}

		for key := range fields {
			changed = append(changed, key)
		}
		next.UpdatedAt = s.clock.Now()
		fields["updated_at"] = next.UpdatedAt
		if err := s.repo.UpdateFields(ctx, tx, next.ID, fields); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if len(changed) > 0 {
		slices.Sort(changed)
		s.emitAudit(ctx, actor, "invoice.updated", &updated, map[string]any{
			"fields": strings.Join(changed, ","),
		})
	}
	return updated, nil
}

// ChangeStatus is the dedicated status transition operation.
func (s *Service) ChangeStatus(ctx context.Context, req invoicedomain.ChangeStatusRequest) (invoicedomain.Invoice, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectInvoice, authorization.ActionInvoiceStatus)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoiceID, err := parseID(req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	target := invoicedomain.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	var (
		updated  invoicedomain.Invoice
		previous invoicedomain.InvoiceStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindForUpdate(ctx, tx, businessID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrNotFound
		}
		if !canTransition(current.Status, target) {
			return &invoicedomain.StateError{Op: "move to " + string(target), Status: current.Status}
		}

		previous = current.Status
		current.Status = target
		current.UpdatedAt = s.clock.Now()
		updated = *current
		return s.repo.UpdateFields(ctx, tx, current.ID, map[string]any{
			"status":     target,
			"updated_at": current.UpdatedAt,
		})
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordInvoiceStatusChange(ctx, string(previous), string(target))
	s.emitAudit(ctx, actor, "invoice.status_changed", &updated, map[string]any{
		"previous_status": string(previous),
	})
	return updated, nil
}

// repriceItems recomputes every line at the minor unit of invoice.Currency
// and refreshes the header totals.
func (s *Service) repriceItems(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	items, err := s.repo.ListItems(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	places := totals.Places(invoice.Currency)

	lines := make([]totals.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, totals.Line{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			VATRate:   item.VATRate,
			Discount:  item.LineDiscount,
		})
	}
	computed, err := totals.Calculate(lines, places)
	if err != nil {
		return err
	}

	for idx, item := range items {
		lt := computed.Lines[idx]
		if err := s.repo.UpdateItemFields(ctx, tx, item.ID, map[string]any{
			"line_subtotal": lt.Subtotal,
			"line_discount": lt.Discount,
			"line_vat":      lt.VAT,
			"line_total":    lt.Total,
		}); err != nil {
			return err
		}
	}

	invoice.Subtotal = computed.Subtotal
	invoice.DiscountTotal = computed.DiscountTotal
	invoice.VATTotal = computed.VATTotal
	invoice.Total = computed.Total
	invoice.BalanceDue = computed.Total.Sub(invoice.AmountPaid)
	return nil
}
