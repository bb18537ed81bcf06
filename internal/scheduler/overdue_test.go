package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	"github.com/smallbiznis/quoteflow/internal/clock"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// statusInvoiceSvc applies ChangeStatus straight to the table and records
// the context each call carried.
type statusInvoiceSvc struct {
	invoicedomain.Service

	db         *gorm.DB
	reject     map[snowflake.ID]bool
	calls      []snowflake.ID
	actors     []identitydomain.Actor
	businesses []snowflake.ID
}

func (f *statusInvoiceSvc) ChangeStatus(ctx context.Context, req invoicedomain.ChangeStatusRequest) (invoicedomain.Invoice, error) {
	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	f.calls = append(f.calls, id)
	actor, _ := identitydomain.ActorFromContext(ctx)
	f.actors = append(f.actors, actor)
	businessID, _ := businesscontext.BusinessIDFromContext(ctx)
	f.businesses = append(f.businesses, businessID)

	if f.reject[id] {
		return invoicedomain.Invoice{}, &invoicedomain.StateError{Op: "move to overdue", Status: invoicedomain.InvoiceStatusPaid}
	}
	if err := f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", id).Update("status", req.Status).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoicedomain.Invoice{ID: id, Status: invoicedomain.InvoiceStatus(req.Status)}, nil
}

type overdueEnv struct {
	db    *gorm.DB
	svc   *statusInvoiceSvc
	sched *Scheduler
}

func newOverdueEnv(t *testing.T, batchSize int) *overdueEnv {
	t.Helper()
	useTestRegistry(t)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := &statusInvoiceSvc{db: db, reject: map[snowflake.ID]bool{}}
	sched, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		InvoiceSvc: svc,
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)),
		Config:     Config{BatchSize: batchSize},
	})
	require.NoError(t, err)

	return &overdueEnv{db: db, svc: svc, sched: sched}
}

func (e *overdueEnv) seed(t *testing.T, id int64, status invoicedomain.InvoiceStatus, due time.Time, balance string) {
	t.Helper()
	require.NoError(t, e.db.Create(&invoicedomain.Invoice{
		ID:            snowflake.ID(id),
		BusinessID:    snowflake.ID(7000),
		ClientID:      snowflake.ID(7001),
		InvoiceNumber: "INV-" + snowflake.ID(id).String(),
		IssueDate:     due.AddDate(0, 0, -30),
		DueDate:       due,
		Currency:      "EUR",
		Subtotal:      decimal.RequireFromString("100"),
		DiscountTotal: decimal.Zero,
		VATTotal:      decimal.Zero,
		Total:         decimal.RequireFromString("100"),
		AmountPaid:    decimal.RequireFromString("100").Sub(decimal.RequireFromString(balance)),
		BalanceDue:    decimal.RequireFromString(balance),
		Status:        status,
		CreatedAt:     due,
		UpdatedAt:     due,
	}).Error)
}

func (e *overdueEnv) status(t *testing.T, id int64) invoicedomain.InvoiceStatus {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, e.db.First(&inv, "id = ?", id).Error)
	return inv.Status
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMarkOverdueInvoicesJob(t *testing.T) {
	env := newOverdueEnv(t, 2)

	env.seed(t, 101, invoicedomain.InvoiceStatusSent, date(2026, 6, 30), "100")
	env.seed(t, 102, invoicedomain.InvoiceStatusSent, date(2026, 7, 2), "100")
	env.seed(t, 103, invoicedomain.InvoiceStatusDraft, date(2026, 6, 1), "100")
	env.seed(t, 104, invoicedomain.InvoiceStatusSent, date(2026, 6, 15), "0")
	env.seed(t, 105, invoicedomain.InvoiceStatusSent, date(2026, 7, 1), "40")
	env.seed(t, 106, invoicedomain.InvoiceStatusSent, date(2026, 5, 1), "100")
	env.svc.reject[snowflake.ID(106)] = true

	require.NoError(t, env.sched.RunOnce(context.Background()))

	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, env.status(t, 101))
	assert.Equal(t, invoicedomain.InvoiceStatusSent, env.status(t, 102), "due today is not overdue yet")
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, env.status(t, 103))
	assert.Equal(t, invoicedomain.InvoiceStatusSent, env.status(t, 104), "settled invoices are skipped")
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, env.status(t, 105))
	assert.Equal(t, invoicedomain.InvoiceStatusSent, env.status(t, 106))

	assert.ElementsMatch(t, []snowflake.ID{101, 105, 106}, env.svc.calls)
	for _, actor := range env.svc.actors {
		assert.Equal(t, identitydomain.ActorTypeSystem, actor.Type)
	}
	for _, businessID := range env.svc.businesses {
		assert.Equal(t, snowflake.ID(7000), businessID)
	}
}

func TestMarkOverdueInvoicesJobIsIdempotent(t *testing.T) {
	env := newOverdueEnv(t, 10)
	env.seed(t, 201, invoicedomain.InvoiceStatusSent, date(2026, 6, 1), "100")

	require.NoError(t, env.sched.MarkOverdueInvoicesJob(context.Background()))
	require.NoError(t, env.sched.MarkOverdueInvoicesJob(context.Background()))

	assert.Equal(t, []snowflake.ID{201}, env.svc.calls)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, env.status(t, 201))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
