package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/quoteflow/pkg/db/option"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type document struct {
	ID         int64 `gorm:"primaryKey"`
	BusinessID int64
	Kind       string
	CreatedAt  time.Time
}

func seedDocuments(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&document{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, db.Create(&document{ID: i, BusinessID: 7, Kind: "invoice", CreatedAt: base.Add(time.Duration(i) * time.Hour)}).Error)
	}
	require.NoError(t, db.Create(&document{ID: 6, BusinessID: 8, Kind: "invoice", CreatedAt: base}).Error)
	return db
}

func TestStoreFindFiltersAndPages(t *testing.T) {
	store := NewStore[document](seedDocuments(t))
	ctx := context.Background()

	rows, err := store.Find(ctx, &document{BusinessID: 7},
		option.Keyset(pagination.Pagination{PageSize: 2}),
		option.SortBy("id", "desc", "id"),
	)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(5), rows[0].ID)

	page, info := pagination.Page(rows, 2, func(d *document) pagination.Cursor {
		return pagination.NewCursor(strconv.FormatInt(d.ID, 10), d.CreatedAt)
	})
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	rows, err = store.Find(ctx, &document{BusinessID: 7},
		option.Keyset(pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken}),
		option.SortBy("id", "desc", "id"),
	)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0].ID)
}

func TestSortByFallsBackToCreatedAt(t *testing.T) {
	store := NewStore[document](seedDocuments(t))

	rows, err := store.Find(context.Background(), &document{Kind: "invoice"}, option.SortBy("kind; DROP", "asc"))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, int64(6), rows[0].ID)
	assert.Equal(t, int64(5), rows[5].ID)
}
