package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	return tx.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, tx *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, businessID, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(tx.WithContext(ctx), businessID, id)
}

func (r *repo) FindForUpdate(ctx context.Context, tx *gorm.DB, businessID, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.ForUpdate(tx.WithContext(ctx)), businessID, id)
}

func (r *repo) find(stmt *gorm.DB, businessID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := stmt.
		Where("business_id = ? AND id = ?", businessID, id).
		Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) NumberExists(ctx context.Context, tx *gorm.DB, businessID snowflake.ID, number string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("business_id = ? AND invoice_number = ?", businessID, strings.TrimSpace(number)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPayments(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoicePayment, error) {
	var payments []domain.InvoicePayment
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) UpdateFields(ctx context.Context, tx *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) UpdateItemFields(ctx context.Context, tx *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&domain.InvoiceItem{}).
		Where("id = ?", id).
		Updates(fields).Error
}
