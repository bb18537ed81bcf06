package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, quote *domain.Quote) error {
	return db.WithContext(ctx).Create(quote).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.QuoteItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Delete(&domain.QuoteItem{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessID, id).
		Take(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repo) FindForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		Take(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]domain.QuoteItem, error) {
	var items []domain.QuoteItem
	err := db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Quote{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) MarkInvoiced(ctx context.Context, db *gorm.DB, id, invoiceID snowflake.ID) error {
	res := db.WithContext(ctx).
		Model(&domain.Quote{}).
		Where("id = ? AND invoice_id IS NULL", id).
		Update("invoice_id", invoiceID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyInvoiced
	}
	return nil
}

func (r *repo) InsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *domain.QuoteAcceptanceSnapshot) error {
	return db.WithContext(ctx).Create(snapshot).Error
}

func (r *repo) LatestSnapshot(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*domain.QuoteAcceptanceSnapshot, error) {
	var snapshot domain.QuoteAcceptanceSnapshot
	err := db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at desc, id desc").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoSnapshotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
