package numbering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/observability/tracing"
	"github.com/smallbiznis/quoteflow/internal/ratelimit"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	keyNumberingLock        = "lock:numbering:%s:%s"
	defaultNumberingLockTTL = 5 * time.Second
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Invoicing *config.InvoicingConfigHolder
	Locker    *ratelimit.Locker `optional:"true"`
	Metrics   *metrics.Metrics  `optional:"true"`
}

// InUse reports whether number is already held by a document of the
// business, for example one whose number was typed in by a user.
type InUse func(ctx context.Context, tx *gorm.DB, number string) (bool, error)

type locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error)
}

// Generator hands out sequential document numbers per business and kind.
// Uniqueness is enforced by the database: the counter row is advanced with a
// compare-and-swap and the caller's unique index is the final backstop.
type Generator struct {
	log       *zap.Logger
	clock     clock.Clock
	invoicing *config.InvoicingConfigHolder
	locker    locker
	lockTTL   time.Duration
	metrics   *metrics.Metrics

	// beforeAdvance runs between reading and advancing the counter.
	beforeAdvance func(ctx context.Context, tx *gorm.DB, attempt int) error
}

func NewGenerator(p Params) *Generator {
	ttl := p.Config.NumberingLockTTL
	if ttl <= 0 {
		ttl = defaultNumberingLockTTL
	}
	g := &Generator{
		log:       p.Log.Named("numbering.generator"),
		clock:     p.Clock,
		invoicing: p.Invoicing,
		lockTTL:   ttl,
		metrics:   p.Metrics,
	}
	if p.Locker != nil {
		g.locker = p.Locker
	}
	return g
}

// Next allocates the next number inside tx. Nothing is allocated unless tx
// commits, so a failed caller leaves the counter untouched. Values whose
// formatted number inUse reports as taken are skipped; each skip spends one
// of the bounded attempts. inUse may be nil.
func (g *Generator) Next(ctx context.Context, tx *gorm.DB, businessID snowflake.ID, kind string, inUse InUse) (_ string, err error) {
	if businessID == 0 {
		return "", ErrInvalidBusiness
	}
	kind = strings.TrimSpace(kind)

	ctx, span := tracing.StartSpan(ctx, "quoteflow/numbering", "numbering.next", attribute.String("document.kind", kind))
	defer func() { tracing.EndSpan(span, err) }()

	cfg := g.invoicing.Get()
	prefix, err := prefixFor(cfg, kind)
	if err != nil {
		return "", err
	}

	format := func(value int64) string { return Format(prefix, cfg.NumberPadding, value) }
	return g.advance(ctx, tx, businessID, kind, cfg.MaxNumberAttempts, format, inUse)
}

func (g *Generator) advance(ctx context.Context, tx *gorm.DB, businessID snowflake.ID, kind string, maxAttempts int, format func(int64) string, inUse InUse) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultInvoicingConfig().MaxNumberAttempts
	}

	now := g.clock.Now()
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DocumentSequence{
			BusinessID: businessID,
			Kind:       kind,
			LastValue:  0,
			UpdatedAt:  now,
		}).Error; err != nil {
		return "", fmt.Errorf("ensure sequence: %w", err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var current DocumentSequence
		if err := db.ForUpdate(tx.WithContext(ctx)).
			Where("business_id = ? AND kind = ?", businessID, kind).
			Take(&current).Error; err != nil {
			return "", fmt.Errorf("read sequence: %w", err)
		}

		if g.beforeAdvance != nil {
			if err := g.beforeAdvance(ctx, tx, attempt); err != nil {
				return "", err
			}
		}

		next := current.LastValue + 1
		res := tx.WithContext(ctx).
			Model(&DocumentSequence{}).
			Where("business_id = ? AND kind = ? AND last_value = ?", businessID, kind, current.LastValue).
			Updates(map[string]any{
				"last_value": next,
				"updated_at": g.clock.Now(),
			})
		if res.Error != nil {
			return "", fmt.Errorf("advance sequence: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			g.metrics.RecordNumberRetry(ctx, kind)
			g.log.Debug("sequence advanced concurrently, retrying",
				zap.String("business_id", businessID.String()),
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
			)
			continue
		}

		number := format(next)
		if inUse == nil {
			return number, nil
		}
		taken, err := inUse(ctx, tx, number)
		if err != nil {
			return "", fmt.Errorf("check number %s: %w", number, err)
		}
		if !taken {
			return number, nil
		}
		// The counter stays past the taken value, so the next round moves on.
		g.metrics.RecordNumberRetry(ctx, kind)
		g.log.Info("sequence value already used by another document, skipping",
			zap.String("business_id", businessID.String()),
			zap.String("kind", kind),
			zap.String("number", number),
			zap.Int("attempt", attempt),
		)
	}

	g.log.Warn("number generation exhausted retries",
		zap.String("business_id", businessID.String()),
		zap.String("kind", kind),
		zap.Int("attempts", maxAttempts),
	)
	return "", ErrNumberGenerationFailed
}

// Lock takes the best-effort redis lock for the business and kind. Callers
// take it before opening the transaction that calls Next and release it once
// that transaction has finished, so concurrent allocations queue instead of
// losing compare-and-swap rounds. Without redis, or when the lock is busy or
// failing, the returned release is a no-op and allocation proceeds unlocked.
func (g *Generator) Lock(ctx context.Context, businessID snowflake.ID, kind string) (release func()) {
	noop := func() {}
	if g.locker == nil {
		return noop
	}
	key := fmt.Sprintf(keyNumberingLock, businessID.String(), kind)
	unlock, err := g.locker.Obtain(ctx, key, g.lockTTL)
	if err != nil {
		g.log.Warn("numbering lock not obtained, proceeding without it",
			zap.String("key", key),
			zap.Error(err),
		)
		return noop
	}
	return func() { unlock(context.Background()) }
}

func prefixFor(cfg config.InvoicingConfig, kind string) (string, error) {
	switch kind {
	case KindInvoice:
		return cfg.InvoicePrefix, nil
	case KindQuote:
		return cfg.QuotePrefix, nil
	default:
		return "", ErrInvalidKind
	}
}

// Format renders a sequence value, e.g. Format("INV-", 6, 12) is INV-000012.
func Format(prefix string, padding int, value int64) string {
	if padding <= 0 {
		return fmt.Sprintf("%s%d", prefix, value)
	}
	return fmt.Sprintf("%s%0*d", prefix, padding, value)
}
