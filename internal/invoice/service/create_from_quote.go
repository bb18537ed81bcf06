package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/clock"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	"github.com/smallbiznis/quoteflow/internal/observability/tracing"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateFromQuote turns the acceptance snapshot of a quote into a draft
// invoice. Every precondition is checked before the first write, and the
// header, items and the quote's invoice link commit in one transaction with
// the quote row locked.
func (s *Service) CreateFromQuote(ctx context.Context, quoteIDRaw string) (invoicedomain.CreateFromQuoteResult, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteConvert)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, sourceQuote, failureReason(err))
		return invoicedomain.CreateFromQuoteResult{}, err
	}

	quoteID, err := parseID(quoteIDRaw)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, sourceQuote, failureReason(err))
		return invoicedomain.CreateFromQuoteResult{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "quoteflow/invoice", "invoice.create_from_quote",
		attribute.String("quote.id", quoteID.String()),
	)
	cfg := s.invoicing.Get()
	release := s.numbering.Lock(ctx, businessID, numbering.KindInvoice)
	defer release()

	var (
		invoice invoicedomain.Invoice
		quote   *quotedomain.Quote
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		quote, err = s.quoteRepo.FindForUpdate(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return quotedomain.ErrNotFound
		}
		if quote.BusinessID != businessID {
			return authorization.ErrForbidden
		}
		if quote.Status != quotedomain.QuoteStatusAccepted {
			return &quotedomain.StateError{Op: "create invoice", Status: quote.Status}
		}
		if !quote.IsLocked {
			return &quotedomain.StateError{Op: "create invoice", Status: quote.Status, Reason: "quote is not locked"}
		}

		snapshot, err := s.quoteRepo.LatestSnapshot(ctx, tx, quote.ID)
		if err != nil {
			return err
		}
		frozen, err := snapshot.DecodeItems()
		if err != nil {
			return fmt.Errorf("decode snapshot %s: %w", snapshot.ID, err)
		}
		if len(frozen) == 0 {
			return invoicedomain.ErrEmptyInvoice
		}
		if quote.InvoiceID != nil {
			return quotedomain.ErrAlreadyInvoiced
		}

		lines := make([]pricedLine, 0, len(frozen))
		for _, item := range frozen {
			rate := item.VATRate
			lines = append(lines, pricedLine{
				item: lineitem.Item{
					Type:        item.Type,
					Description: item.Description,
					Quantity:    item.Quantity,
					Unit:        item.Unit,
					UnitPrice:   item.UnitPrice,
					VATRate:     &rate,
					Discount:    item.Discount,
				},
				metadata: map[string]any{
					"quote_item_id": item.QuoteItemID.String(),
					"snapshot_id":   snapshot.ID.String(),
				},
			})
		}
		computed, err := priceLines(lines, totals.Places(quote.Currency))
		if err != nil {
			return err
		}

		number, err := s.nextInvoiceNumber(ctx, tx, businessID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		issueDate := clock.Today(s.clock)
		quoteRef := quote.ID
		invoice = invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			BusinessID:    businessID,
			ClientID:      quote.ClientID,
			QuoteID:       &quoteRef,
			InvoiceNumber: number,
			IssueDate:     issueDate,
			DueDate:       issueDate.AddDate(0, 0, cfg.PaymentTermsDays),
			Currency:      quote.Currency,
			Status:        invoicedomain.InvoiceStatusDraft,
			Notes:         strings.TrimSpace(quote.Notes),
			Terms:         cfg.DefaultInvoiceTerms,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		applyTotals(&invoice, computed)

		if _, err := s.writeInvoice(ctx, tx, &invoice, lines, computed, true); err != nil {
			return err
		}
		return s.quoteRepo.MarkInvoiced(ctx, tx, quote.ID, invoice.ID)
	})
	tracing.EndSpan(span, err)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, sourceQuote, failureReason(err))
		s.log.Warn("create invoice from quote failed",
			zap.String("business_id", businessID.String()),
			zap.String("quote_id", quoteID.String()),
			zap.String("reason", failureReason(err)),
			zap.Error(err),
		)
		return invoicedomain.CreateFromQuoteResult{}, err
	}

	s.metrics.RecordInvoiceCreated(ctx, sourceQuote)
	s.log.Info("invoice created from quote",
		zap.String("business_id", businessID.String()),
		zap.String("quote_id", quote.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	s.emitAudit(ctx, actor, "invoice.created_from_quote", &invoice, map[string]any{
		"quote_number": quote.QuoteNumber,
	})

	return invoicedomain.CreateFromQuoteResult{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		QuoteID:       quote.ID,
		Status:        invoice.Status,
		CreatedAt:     invoice.CreatedAt,
		Message:       fmt.Sprintf("Invoice %s created from quote %s", invoice.InvoiceNumber, quote.QuoteNumber),
	}, nil
}
