package numbering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&DocumentSequence{}))
	return db
}

func newTestGenerator() *Generator {
	return NewGenerator(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Invoicing: config.NewStaticInvoicingConfigHolder(config.DefaultInvoicingConfig()),
	})
}

func next(t *testing.T, db *gorm.DB, gen *Generator, businessID snowflake.ID, kind string) (string, error) {
	t.Helper()
	return nextSkipping(t, db, gen, businessID, kind, nil)
}

func nextSkipping(t *testing.T, db *gorm.DB, gen *Generator, businessID snowflake.ID, kind string, inUse InUse) (string, error) {
	t.Helper()
	var number string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = gen.Next(context.Background(), tx, businessID, kind, inUse)
		return err
	})
	return number, err
}

func lastValue(t *testing.T, db *gorm.DB, businessID snowflake.ID, kind string) int64 {
	t.Helper()
	var seq DocumentSequence
	err := db.Where("business_id = ? AND kind = ?", businessID, kind).Take(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return seq.LastValue
}

func TestNextIsSequentialPerBusiness(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()

	first, err := next(t, db, gen, 100, KindInvoice)
	require.NoError(t, err)
	second, err := next(t, db, gen, 100, KindInvoice)
	require.NoError(t, err)
	other, err := next(t, db, gen, 200, KindInvoice)
	require.NoError(t, err)
	quote, err := next(t, db, gen, 100, KindQuote)
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", first)
	assert.Equal(t, "INV-000002", second)
	assert.Equal(t, "INV-000001", other)
	assert.Equal(t, "QUO-000001", quote)
}

func TestNextConcurrentCallersGetDistinctNumbers(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, callers)
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var number string
			err := db.Transaction(func(tx *gorm.DB) error {
				var err error
				number, err = gen.Next(context.Background(), tx, 42, KindInvoice, nil)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[number] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, callers)
	for i := 1; i <= callers; i++ {
		_, ok := numbers[fmt.Sprintf("INV-%06d", i)]
		assert.True(t, ok, "missing INV-%06d", i)
	}
	assert.Equal(t, int64(callers), lastValue(t, db, 42, KindInvoice))
}

func TestNextRetriesLostCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()
	gen.beforeAdvance = func(ctx context.Context, tx *gorm.DB, attempt int) error {
		if attempt > 2 {
			return nil
		}
		return tx.Exec(`UPDATE document_sequences SET last_value = last_value + 1 WHERE business_id = ? AND kind = ?`, 7, KindInvoice).Error
	}

	number, err := next(t, db, gen, 7, KindInvoice)
	require.NoError(t, err)
	assert.Equal(t, "INV-000003", number)
}

func TestNextFailsAfterBoundedAttempts(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()

	attempts := 0
	gen.beforeAdvance = func(ctx context.Context, tx *gorm.DB, attempt int) error {
		attempts = attempt
		return tx.Exec(`UPDATE document_sequences SET last_value = last_value + 1 WHERE business_id = ? AND kind = ?`, 9, KindInvoice).Error
	}

	_, err := next(t, db, gen, 9, KindInvoice)
	require.ErrorIs(t, err, ErrNumberGenerationFailed)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, int64(0), lastValue(t, db, 9, KindInvoice))
}

func TestNextSkipsNumbersAlreadyInUse(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()
	taken := map[string]bool{"INV-000001": true, "INV-000002": true}
	var checked []string
	inUse := func(ctx context.Context, tx *gorm.DB, number string) (bool, error) {
		checked = append(checked, number)
		return taken[number], nil
	}

	number, err := nextSkipping(t, db, gen, 11, KindInvoice, inUse)
	require.NoError(t, err)
	assert.Equal(t, "INV-000003", number)
	assert.Equal(t, []string{"INV-000001", "INV-000002", "INV-000003"}, checked)
	assert.Equal(t, int64(3), lastValue(t, db, 11, KindInvoice))

	number, err = nextSkipping(t, db, gen, 11, KindInvoice, inUse)
	require.NoError(t, err)
	assert.Equal(t, "INV-000004", number)
}

func TestNextGivesUpWhenEveryNumberIsInUse(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()
	calls := 0
	inUse := func(ctx context.Context, tx *gorm.DB, number string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := nextSkipping(t, db, gen, 12, KindInvoice, inUse)
	require.ErrorIs(t, err, ErrNumberGenerationFailed)
	assert.Equal(t, config.DefaultInvoicingConfig().MaxNumberAttempts, calls)
	assert.Equal(t, int64(0), lastValue(t, db, 12, KindInvoice))
}

func TestNextSurfacesInUseErrors(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()
	boom := errors.New("lookup failed")

	_, err := nextSkipping(t, db, gen, 13, KindInvoice, func(context.Context, *gorm.DB, string) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), lastValue(t, db, 13, KindInvoice))
}

type recordingLocker struct {
	err      error
	keys     []string
	ttl      time.Duration
	released int
}

func (l *recordingLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	l.ttl = ttl
	return func(context.Context) { l.released++ }, nil
}

func TestLockHoldsUntilReleased(t *testing.T) {
	gen := newTestGenerator()
	locker := &recordingLocker{}
	gen.locker = locker

	release := gen.Lock(context.Background(), 55, KindInvoice)
	require.Equal(t, []string{"lock:numbering:55:invoice"}, locker.keys)
	assert.Equal(t, gen.lockTTL, locker.ttl)
	assert.Zero(t, locker.released)

	release()
	assert.Equal(t, 1, locker.released)
}

func TestLockFallsBackWhenUnavailable(t *testing.T) {
	gen := newTestGenerator()
	assert.Nil(t, gen.locker)
	assert.NotPanics(t, func() { gen.Lock(context.Background(), 55, KindInvoice)() })

	gen.locker = &recordingLocker{err: errors.New("redis down")}
	assert.NotPanics(t, func() { gen.Lock(context.Background(), 55, KindInvoice)() })
}

func TestNextRejectsUnknownKind(t *testing.T) {
	db := setupTestDB(t)
	gen := newTestGenerator()

	_, err := next(t, db, gen, 1, "receipt")
	require.ErrorIs(t, err, ErrInvalidKind)

	_, err = next(t, db, gen, 0, KindInvoice)
	require.ErrorIs(t, err, ErrInvalidBusiness)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "INV-000012", Format("INV-", 6, 12))
	assert.Equal(t, "INV-1234567", Format("INV-", 6, 1234567))
	assert.Equal(t, "Q7", Format("Q", 0, 7))
}
