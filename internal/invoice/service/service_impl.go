package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	"github.com/smallbiznis/quoteflow/internal/observability/metrics"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"github.com/smallbiznis/quoteflow/pkg/db/option"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"github.com/smallbiznis/quoteflow/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	dateLayout = "2006-01-02"

	sourceQuote  = "quote"
	sourceDirect = "direct"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       invoicedomain.Repository
	QuoteRepo  quotedomain.Repository
	ClientRepo clientdomain.Repository
	Numbering  *numbering.Generator
	Invoicing  *config.InvoicingConfigHolder
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        invoicedomain.Repository
	invoicerepo *repository.Store[invoicedomain.Invoice]
	quoteRepo   quotedomain.Repository
	clientRepo  clientdomain.Repository
	numbering   *numbering.Generator
	invoicing   *config.InvoicingConfigHolder
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoicerepo: repository.NewStore[invoicedomain.Invoice](p.DB),
		quoteRepo:   p.QuoteRepo,
		clientRepo:  p.ClientRepo,
		numbering:   p.Numbering,
		invoicing:   p.Invoicing,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		validate:    validator.New(),
	}
}

// Create is the permissive path: the caller supplies the items directly.
func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectInvoice, authorization.ActionInvoiceCreate)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, sourceDirect, failureReason(err))
		return invoicedomain.InvoiceDetail{}, err
	}

	detail, err := s.create(ctx, businessID, req)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, sourceDirect, failureReason(err))
		return invoicedomain.InvoiceDetail{}, err
	}

	s.metrics.RecordInvoiceCreated(ctx, sourceDirect)
	s.log.Info("invoice created",
		zap.String("business_id", businessID.String()),
		zap.String("invoice_id", detail.Invoice.ID.String()),
		zap.String("invoice_number", detail.Invoice.InvoiceNumber),
	)
	s.emitAudit(ctx, actor, "invoice.created", &detail.Invoice, nil)
	return detail, nil
}

func (s *Service) create(ctx context.Context, businessID snowflake.ID, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	cfg := s.invoicing.Get()

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidClient
	}

	var quoteID *snowflake.ID
	if req.QuoteID != nil && strings.TrimSpace(*req.QuoteID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.QuoteID))
		if err != nil || parsed == 0 {
			return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidQuote
		}
		quoteID = &parsed
	}

	currency, err := s.normalizeCurrency(req.Currency, cfg.DefaultCurrency)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	issueDate := clock.Today(s.clock)
	if req.IssueDate != nil && strings.TrimSpace(*req.IssueDate) != "" {
		issueDate, err = parseDate(*req.IssueDate)
		if err != nil {
			return invoicedomain.InvoiceDetail{}, err
		}
	}
	dueDate := issueDate.AddDate(0, 0, cfg.PaymentTermsDays)
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		dueDate, err = parseDate(*req.DueDate)
		if err != nil {
			return invoicedomain.InvoiceDetail{}, err
		}
	}
	if dueDate.Before(issueDate) {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrDueBeforeIssue
	}

	invoiceNumber := strings.TrimSpace(req.InvoiceNumber)
	if len(invoiceNumber) > 64 {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidInvoiceNumber
	}

	vatRate := decimal.Zero
	if req.VATRate != nil {
		vatRate = *req.VATRate
	}
	if vatRate.IsNegative() || vatRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidVATRate
	}

	if len(req.Items) == 0 {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrEmptyInvoice
	}
	if err := lineitem.Validate(req.Items, vatRate); err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	lines := make([]pricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		rate := item.ResolvedVATRate(vatRate)
		item.VATRate = &rate
		lines = append(lines, pricedLine{item: item})
	}
	computed, err := priceLines(lines, totals.Places(currency))
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	terms := cfg.DefaultInvoiceTerms
	if req.Terms != nil {
		terms = strings.TrimSpace(*req.Terms)
	}

	allocated := invoiceNumber == ""
	if allocated {
		release := s.numbering.Lock(ctx, businessID, numbering.KindInvoice)
		defer release()
	}

	var detail invoicedomain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.clientRepo.FindByID(ctx, tx, businessID, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return invoicedomain.ErrInvalidClient
		}

		if quoteID != nil {
			quote, err := s.quoteRepo.FindByID(ctx, tx, businessID, *quoteID)
			if err != nil {
				return err
			}
			if quote == nil || quote.ClientID != clientID {
				return invoicedomain.ErrInvalidQuote
			}
			if quote.InvoiceID != nil {
				return quotedomain.ErrAlreadyInvoiced
			}
		}

		if allocated {
			invoiceNumber, err = s.nextInvoiceNumber(ctx, tx, businessID)
			if err != nil {
				return err
			}
		} else {
			taken, err := s.repo.NumberExists(ctx, tx, businessID, invoiceNumber)
			if err != nil {
				return err
			}
			if taken {
				return invoicedomain.ErrInvoiceNumberTaken
			}
		}

		now := s.clock.Now()
		invoice := invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			BusinessID:    businessID,
			ClientID:      clientID,
			QuoteID:       quoteID,
			InvoiceNumber: invoiceNumber,
			IssueDate:     issueDate,
			DueDate:       dueDate,
			Currency:      currency,
			Status:        invoicedomain.InvoiceStatusDraft,
			Notes:         strings.TrimSpace(req.Notes),
			Terms:         terms,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		applyTotals(&invoice, computed)

		items, err := s.writeInvoice(ctx, tx, &invoice, lines, computed, allocated)
		if err != nil {
			return err
		}
		if quoteID != nil {
			if err := s.quoteRepo.MarkInvoiced(ctx, tx, *quoteID, invoice.ID); err != nil {
				return err
			}
		}

		detail = invoicedomain.InvoiceDetail{
			Invoice:  invoice,
			Items:    items,
			Payments: []invoicedomain.InvoicePayment{},
			Totals:   recompute(invoice, items, nil),
		}
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	return detail, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.InvoiceDetail, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectInvoice, authorization.ActionInvoiceView)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, businessID, invoiceID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	if invoice == nil {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, invoice.ID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	payments, err := s.repo.ListPayments(ctx, s.db, invoice.ID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	computed := recompute(*invoice, items, payments)
	if !computed.Consistent {
		s.log.Warn("invoice header disagrees with its items",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("header_total", invoice.Total.String()),
			zap.String("computed_total", computed.Total.String()),
		)
	}

	return invoicedomain.InvoiceDetail{
		Invoice:  *invoice,
		Items:    items,
		Payments: payments,
		Totals:   computed,
	}, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectInvoice, authorization.ActionInvoiceView)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := &invoicedomain.Invoice{BusinessID: businessID}
	if status := strings.TrimSpace(req.Status); status != "" {
		if !invoicedomain.InvoiceStatus(status).Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = invoicedomain.InvoiceStatus(status)
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil || parsed == 0 {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidClient
		}
		filter.ClientID = parsed
	}
	if req.PageToken != "" {
		if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
	}
	pageSize := req.Size()

	items, err := s.invoicerepo.Find(ctx, filter,
		option.Keyset(req.Pagination),
		option.SortBy("id", "desc", "id"),
	)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(invoice *invoicedomain.Invoice) pagination.Cursor {
		return pagination.NewCursor(invoice.ID.String(), invoice.CreatedAt)
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

// pricedLine is one line ready to be written: the canonical item with its
// VAT rate resolved, the computed amounts and free-form metadata.
type pricedLine struct {
	item     lineitem.Item
	metadata map[string]any
}

func priceLines(lines []pricedLine, places int32) (totals.Totals, error) {
	inputs := make([]totals.Line, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, line.item.Line(decimal.Zero))
	}
	return totals.Calculate(inputs, places)
}

func applyTotals(invoice *invoicedomain.Invoice, computed totals.Totals) {
	invoice.Subtotal = computed.Subtotal
	invoice.DiscountTotal = computed.DiscountTotal
	invoice.VATTotal = computed.VATTotal
	invoice.Total = computed.Total
	invoice.AmountPaid = decimal.Zero
	invoice.BalanceDue = computed.Total
}

// nextInvoiceNumber allocates from the invoice sequence, stepping over
// numbers a user already gave to another invoice of the business.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, businessID snowflake.ID) (string, error) {
	return s.numbering.Next(ctx, tx, businessID, numbering.KindInvoice,
		func(ctx context.Context, tx *gorm.DB, number string) (bool, error) {
			return s.repo.NumberExists(ctx, tx, businessID, number)
		},
	)
}

// writeInvoice persists the header then its items inside tx. Any failure is
// reported as ErrPersistenceFailed and the caller's transaction rolls both
// back. A duplicate number is the caller's conflict only when the caller
// chose it; an allocated number that collides is a numbering failure.
func (s *Service) writeInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, lines []pricedLine, computed totals.Totals, allocated bool) ([]invoicedomain.InvoiceItem, error) {
	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			if allocated {
				return nil, fmt.Errorf("%w: %s already stored", numbering.ErrNumberGenerationFailed, invoice.InvoiceNumber)
			}
			return nil, invoicedomain.ErrInvoiceNumberTaken
		}
		return nil, fmt.Errorf("%w: write header: %w", invoicedomain.ErrPersistenceFailed, err)
	}

	items := make([]invoicedomain.InvoiceItem, 0, len(lines))
	for idx, line := range lines {
		lt := computed.Lines[idx]
		items = append(items, invoicedomain.InvoiceItem{
			ID:           s.genID.Generate(),
			BusinessID:   invoice.BusinessID,
			InvoiceID:    invoice.ID,
			Type:         line.item.ResolvedType(),
			Description:  strings.TrimSpace(line.item.Description),
			Quantity:     line.item.Quantity,
			Unit:         strings.TrimSpace(line.item.Unit),
			UnitPrice:    line.item.UnitPrice,
			VATRate:      line.item.ResolvedVATRate(decimal.Zero),
			LineSubtotal: lt.Subtotal,
			LineDiscount: lt.Discount,
			LineVAT:      lt.VAT,
			LineTotal:    lt.Total,
			SortOrder:    idx,
			Metadata:     datatypes.JSONMap(line.metadata),
			CreatedAt:    invoice.CreatedAt,
		})
	}
	if err := s.repo.InsertItems(ctx, tx, items); err != nil {
		return nil, fmt.Errorf("%w: write items: %w", invoicedomain.ErrPersistenceFailed, err)
	}
	return items, nil
}

// recompute derives the totals from persisted items and payments and
// reports whether the stored header agrees with them.
func recompute(invoice invoicedomain.Invoice, items []invoicedomain.InvoiceItem, payments []invoicedomain.InvoicePayment) invoicedomain.ComputedTotals {
	places := totals.Places(invoice.Currency)
	inputs := make([]totals.Line, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, totals.Line{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			VATRate:   item.VATRate,
			Discount:  item.LineDiscount,
		})
	}

	out := invoicedomain.ComputedTotals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		VATTotal:      decimal.Zero,
		Total:         decimal.Zero,
		AmountPaid:    decimal.Zero,
	}
	consistent := true
	computed, err := totals.Calculate(inputs, places)
	if err != nil {
		consistent = false
		for _, item := range items {
			out.Subtotal = out.Subtotal.Add(item.LineSubtotal)
			out.DiscountTotal = out.DiscountTotal.Add(item.LineDiscount)
			out.VATTotal = out.VATTotal.Add(item.LineVAT)
		}
		out.Total = out.Subtotal.Sub(out.DiscountTotal).Add(out.VATTotal)
	} else {
		out.Subtotal = computed.Subtotal
		out.DiscountTotal = computed.DiscountTotal
		out.VATTotal = computed.VATTotal
		out.Total = computed.Total
		for idx, item := range items {
			if !computed.Lines[idx].Total.Equal(item.LineTotal) {
				consistent = false
			}
		}
	}

	for _, payment := range payments {
		out.AmountPaid = out.AmountPaid.Add(payment.Amount)
	}
	out.BalanceDue = out.Total.Sub(out.AmountPaid)

	out.Consistent = consistent &&
		out.Subtotal.Equal(invoice.Subtotal) &&
		out.DiscountTotal.Equal(invoice.DiscountTotal) &&
		out.VATTotal.Equal(invoice.VATTotal) &&
		out.Total.Equal(invoice.Total) &&
		out.AmountPaid.Equal(invoice.AmountPaid) &&
		out.BalanceDue.Equal(invoice.BalanceDue)
	return out
}

func (s *Service) normalizeCurrency(value string, fallback string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if currency == "" {
		currency = fallback
	}
	if err := s.validate.Var(currency, "iso4217"); err != nil {
		return "", invoicedomain.ErrInvalidCurrency
	}
	return currency, nil
}

func (s *Service) emitAudit(ctx context.Context, actor identitydomain.Actor, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"client_id":      invoice.ClientID.String(),
		"currency":       invoice.Currency,
		"total":          invoice.Total.StringFixed(totals.Places(invoice.Currency)),
		"status":         string(invoice.Status),
	}
	if invoice.QuoteID != nil {
		metadata["quote_id"] = invoice.QuoteID.String()
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		BusinessID: invoice.BusinessID,
		ActorType:  actor.Type,
		ActorID:    actor.IDString(),
		Action:     action,
		TargetType: auditdomain.TargetInvoice,
		TargetID:   invoice.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("invoice audit failed", zap.String("action", action), zap.Error(err))
	}
}

// failureReason maps an error to a low-cardinality metrics label.
func failureReason(err error) string {
	var lineErr *lineitem.ValidationError
	switch {
	case errors.Is(err, authorization.ErrInvalidActor):
		return "unauthorized"
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidBusiness):
		return "forbidden"
	case errors.Is(err, quotedomain.ErrNotFound), errors.Is(err, invoicedomain.ErrNotFound):
		return "not_found"
	case errors.Is(err, quotedomain.ErrInvalidState), errors.Is(err, quotedomain.ErrNoSnapshotFound):
		return "invalid_state"
	case errors.Is(err, quotedomain.ErrAlreadyInvoiced), errors.Is(err, invoicedomain.ErrInvoiceNumberTaken):
		return "conflict"
	case errors.Is(err, invoicedomain.ErrEmptyInvoice):
		return "empty_invoice"
	case errors.Is(err, numbering.ErrNumberGenerationFailed):
		return "number_generation"
	case errors.Is(err, invoicedomain.ErrPersistenceFailed):
		return "persistence"
	case errors.As(err, &lineErr), errors.Is(err, totals.ErrInvalidLineItem),
		errors.Is(err, invoicedomain.ErrInvalidClient),
		errors.Is(err, invoicedomain.ErrInvalidQuote),
		errors.Is(err, invoicedomain.ErrInvalidCurrency),
		errors.Is(err, invoicedomain.ErrInvalidDate),
		errors.Is(err, invoicedomain.ErrDueBeforeIssue),
		errors.Is(err, invoicedomain.ErrInvalidVATRate),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceNumber),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, quotedomain.ErrInvalidID):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, invoicedomain.ErrInvalidDate
	}
	return parsed, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}
