package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	"github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ClientRepo clientdomain.Repository
	Numbering  *numbering.Generator
	Invoicing  *config.InvoicingConfigHolder
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	clientRepo clientdomain.Repository
	numbering  *numbering.Generator
	invoicing  *config.InvoicingConfigHolder
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
	validate   *validator.Validate
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quote.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		clientRepo: p.ClientRepo,
		numbering:  p.Numbering,
		invoicing:  p.Invoicing,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		validate:   validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateQuoteRequest) (domain.QuoteDetail, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteCreate)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.QuoteDetail{}, domain.ErrInvalidClient
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.invoicing.Get().DefaultCurrency
	}
	if err := s.validate.Var(currency, "iso4217"); err != nil {
		return domain.QuoteDetail{}, domain.ErrInvalidCurrency
	}

	vatRate := decimal.Zero
	if req.VATRate != nil {
		vatRate = *req.VATRate
	}
	if vatRate.IsNegative() || vatRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.QuoteDetail{}, domain.ErrInvalidVATRate
	}

	if err := lineitem.Validate(req.Items, vatRate); err != nil {
		return domain.QuoteDetail{}, err
	}

	release := s.numbering.Lock(ctx, businessID, numbering.KindQuote)
	defer release()

	var quote domain.Quote
	var items []domain.QuoteItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.clientRepo.FindByID(ctx, tx, businessID, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return domain.ErrInvalidClient
		}

		number, err := s.numbering.Next(ctx, tx, businessID, numbering.KindQuote, nil)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		quote = domain.Quote{
			ID:          s.genID.Generate(),
			BusinessID:  businessID,
			ClientID:    clientID,
			QuoteNumber: number,
			Status:      domain.QuoteStatusDraft,
			VATRate:     vatRate,
			Currency:    currency,
			Notes:       strings.TrimSpace(req.Notes),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, &quote); err != nil {
			return err
		}

		items = s.buildItems(quote, req.Items)
		return s.repo.InsertItems(ctx, tx, items)
	})
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	s.log.Info("quote created",
		zap.String("business_id", businessID.String()),
		zap.String("quote_id", quote.ID.String()),
		zap.String("quote_number", quote.QuoteNumber),
	)
	s.metrics.RecordQuoteTransition(ctx, string(domain.QuoteStatusDraft))

	return s.detail(quote, items, nil)
}

func (s *Service) Get(ctx context.Context, id string) (domain.QuoteDetail, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteView)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	quoteID, err := parseID(id)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	quote, err := s.repo.FindByID(ctx, s.db, businessID, quoteID)
	if err != nil {
		return domain.QuoteDetail{}, err
	}
	if quote == nil {
		return domain.QuoteDetail{}, domain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, quote.ID)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	snapshot, err := s.repo.LatestSnapshot(ctx, s.db, quote.ID)
	if err != nil && !errors.Is(err, domain.ErrNoSnapshotFound) {
		return domain.QuoteDetail{}, err
	}

	return s.detail(*quote, items, snapshot)
}

func (s *Service) ReplaceItems(ctx context.Context, req domain.ReplaceItemsRequest) (domain.QuoteDetail, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteUpdate)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	quoteID, err := parseID(req.ID)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	var quote domain.Quote
	var items []domain.QuoteItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOwned(ctx, tx, businessID, quoteID)
		if err != nil {
			return err
		}
		if current.IsLocked {
			return &domain.StateError{Op: "replace items", Status: current.Status, Reason: "quote is locked"}
		}
		if current.Status != domain.QuoteStatusDraft {
			return &domain.StateError{Op: "replace items", Status: current.Status}
		}
		if err := lineitem.Validate(req.Items, current.VATRate); err != nil {
			return err
		}

		if err := s.repo.DeleteItems(ctx, tx, current.ID); err != nil {
			return err
		}
		items = s.buildItems(*current, req.Items)
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		current.UpdatedAt = s.clock.Now()
		quote = *current
		return s.repo.UpdateFields(ctx, tx, current.ID, map[string]any{"updated_at": current.UpdatedAt})
	})
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	return s.detail(quote, items, nil)
}

func (s *Service) Send(ctx context.Context, id string) (domain.Quote, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteSend)
	if err != nil {
		return domain.Quote{}, err
	}

	quoteID, err := parseID(id)
	if err != nil {
		return domain.Quote{}, err
	}

	var quote domain.Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOwned(ctx, tx, businessID, quoteID)
		if err != nil {
			return err
		}
		if current.Status != domain.QuoteStatusDraft {
			return &domain.StateError{Op: "send", Status: current.Status}
		}
		items, err := s.repo.ListItems(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyQuote
		}

		current.Status = domain.QuoteStatusSent
		current.UpdatedAt = s.clock.Now()
		quote = *current
		return s.repo.UpdateFields(ctx, tx, current.ID, map[string]any{
			"status":     current.Status,
			"updated_at": current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Quote{}, err
	}

	s.metrics.RecordQuoteTransition(ctx, string(domain.QuoteStatusSent))
	return quote, nil
}

// Accept moves a sent quote to accepted, locks it and freezes its items
// into an acceptance snapshot in the same transaction.
func (s *Service) Accept(ctx context.Context, id string) (domain.QuoteDetail, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteAccept)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	quoteID, err := parseID(id)
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	var (
		quote    domain.Quote
		items    []domain.QuoteItem
		snapshot domain.QuoteAcceptanceSnapshot
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOwned(ctx, tx, businessID, quoteID)
		if err != nil {
			return err
		}
		if current.Status != domain.QuoteStatusSent {
			return &domain.StateError{Op: "accept", Status: current.Status}
		}

		items, err = s.repo.ListItems(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyQuote
		}

		frozen := make([]domain.SnapshotItem, 0, len(items))
		for _, item := range items {
			frozen = append(frozen, domain.SnapshotItem{
				QuoteItemID: item.ID,
				Type:        item.Type,
				Description: item.Description,
				Quantity:    item.Quantity,
				Unit:        item.Unit,
				UnitPrice:   item.UnitPrice,
				VATRate:     item.Item().ResolvedVATRate(current.VATRate),
				Discount:    item.Discount,
				SortOrder:   item.SortOrder,
			})
		}
		raw, err := json.Marshal(frozen)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		snapshot = domain.QuoteAcceptanceSnapshot{
			ID:         s.genID.Generate(),
			BusinessID: current.BusinessID,
			QuoteID:    current.ID,
			Items:      datatypes.JSON(raw),
			CreatedAt:  now,
		}
		if err := s.repo.InsertSnapshot(ctx, tx, &snapshot); err != nil {
			return err
		}

		current.Status = domain.QuoteStatusAccepted
		current.IsLocked = true
		current.AcceptedAt = &now
		current.UpdatedAt = now
		quote = *current
		return s.repo.UpdateFields(ctx, tx, current.ID, map[string]any{
			"status":      current.Status,
			"is_locked":   true,
			"accepted_at": now,
			"updated_at":  now,
		})
	})
	if err != nil {
		return domain.QuoteDetail{}, err
	}

	s.metrics.RecordQuoteTransition(ctx, string(domain.QuoteStatusAccepted))
	s.audit(ctx, actor, businessID, "quote.accepted", quote.ID, map[string]any{
		"quote_number": quote.QuoteNumber,
		"snapshot_id":  snapshot.ID.String(),
		"item_count":   len(items),
	})

	return s.detail(quote, items, &snapshot)
}

func (s *Service) Reject(ctx context.Context, id string) (domain.Quote, error) {
	actor, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectQuote, authorization.ActionQuoteReject)
	if err != nil {
		return domain.Quote{}, err
	}

	quoteID, err := parseID(id)
	if err != nil {
		return domain.Quote{}, err
	}

	var quote domain.Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOwned(ctx, tx, businessID, quoteID)
		if err != nil {
			return err
		}
		if current.Status != domain.QuoteStatusSent {
			return &domain.StateError{Op: "reject", Status: current.Status}
		}

		current.Status = domain.QuoteStatusRejected
		current.UpdatedAt = s.clock.Now()
		quote = *current
		return s.repo.UpdateFields(ctx, tx, current.ID, map[string]any{
			"status":     current.Status,
			"updated_at": current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Quote{}, err
	}

	s.metrics.RecordQuoteTransition(ctx, string(domain.QuoteStatusRejected))
	s.audit(ctx, actor, businessID, "quote.rejected", quote.ID, map[string]any{
		"quote_number": quote.QuoteNumber,
	})
	return quote, nil
}

// lockOwned loads the quote under a row lock and hides quotes of other
// businesses behind ErrNotFound.
func (s *Service) lockOwned(ctx context.Context, tx *gorm.DB, businessID, id snowflake.ID) (*domain.Quote, error) {
	quote, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if quote == nil || quote.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}
	return quote, nil
}

func (s *Service) buildItems(quote domain.Quote, inputs []lineitem.Item) []domain.QuoteItem {
	items := make([]domain.QuoteItem, 0, len(inputs))
	for idx, input := range inputs {
		items = append(items, domain.QuoteItem{
			ID:          s.genID.Generate(),
			BusinessID:  quote.BusinessID,
			QuoteID:     quote.ID,
			Type:        input.ResolvedType(),
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			Unit:        strings.TrimSpace(input.Unit),
			UnitPrice:   input.UnitPrice,
			VATRate:     input.VATRate,
			Discount:    input.Discount,
			SortOrder:   idx,
			CreatedAt:   quote.UpdatedAt,
		})
	}
	return items
}

func (s *Service) detail(quote domain.Quote, items []domain.QuoteItem, snapshot *domain.QuoteAcceptanceSnapshot) (domain.QuoteDetail, error) {
	lines := make([]totals.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Item().Line(quote.VATRate))
	}
	computed, err := totals.Calculate(lines, totals.Places(quote.Currency))
	if err != nil {
		return domain.QuoteDetail{}, err
	}
	return domain.QuoteDetail{
		Quote:          quote,
		Items:          items,
		Totals:         computed,
		LatestSnapshot: snapshot,
	}, nil
}

func (s *Service) audit(ctx context.Context, actor identitydomain.Actor, businessID snowflake.ID, action string, quoteID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		BusinessID: businessID,
		ActorType:  actor.Type,
		ActorID:    actor.IDString(),
		Action:     action,
		TargetType: auditdomain.TargetQuote,
		TargetID:   quoteID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("quote audit failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
