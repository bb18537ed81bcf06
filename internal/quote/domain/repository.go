package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quote *Quote) error
	InsertItems(ctx context.Context, db *gorm.DB, items []QuoteItem) error
	DeleteItems(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID) (*Quote, error)
	// FindForUpdate loads a quote regardless of business and row locks it
	// where the dialect supports it.
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Quote, error)
	ListItems(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]QuoteItem, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// MarkInvoiced records the invoice created from the quote. It returns
	// ErrAlreadyInvoiced when the quote already points at an invoice.
	MarkInvoiced(ctx context.Context, db *gorm.DB, id, invoiceID snowflake.ID) error
	InsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *QuoteAcceptanceSnapshot) error
	// LatestSnapshot returns the most recently created snapshot or
	// ErrNoSnapshotFound.
	LatestSnapshot(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*QuoteAcceptanceSnapshot, error)
}
