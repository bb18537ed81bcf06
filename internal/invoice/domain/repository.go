package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID) (*Invoice, error)
	NumberExists(ctx context.Context, db *gorm.DB, businessID snowflake.ID, number string) (bool, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoicePayment, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	UpdateItemFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
