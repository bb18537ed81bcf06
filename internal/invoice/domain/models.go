// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Invoice is the billing document. Header amounts always equal the sums of
// its items and BalanceDue is Total minus AmountPaid.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	BusinessID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_business_number,priority:1" json:"business_id"`
	ClientID      snowflake.ID    `gorm:"not null;index" json:"client_id"`
	QuoteID       *snowflake.ID   `gorm:"uniqueIndex:ux_invoices_quote" json:"quote_id,omitempty"`
	InvoiceNumber string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_business_number,priority:2" json:"invoice_number"`
	IssueDate     time.Time       `gorm:"type:date;not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"type:date;not null" json:"due_date"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_total"`
	VATTotal      decimal.Decimal `gorm:"column:vat_total;type:decimal(20,4);not null;default:0" json:"vat_total"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance_due"`
	Status        InvoiceStatus   `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	Terms         string          `gorm:"type:text" json:"terms,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	BusinessID   snowflake.ID      `gorm:"not null;index" json:"business_id"`
	InvoiceID    snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	Type         lineitem.Type     `gorm:"type:varchar(16);not null" json:"type"`
	Description  string            `gorm:"type:text;not null" json:"description"`
	Quantity     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit         string            `gorm:"type:varchar(32)" json:"unit,omitempty"`
	UnitPrice    decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	VATRate      decimal.Decimal   `gorm:"column:vat_rate;type:decimal(6,4);not null;default:0" json:"vat_rate"`
	LineSubtotal decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"line_subtotal"`
	LineDiscount decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"line_discount"`
	LineVAT      decimal.Decimal   `gorm:"column:line_vat;type:decimal(20,4);not null" json:"line_vat"`
	LineTotal    decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"line_total"`
	SortOrder    int               `gorm:"not null;default:0" json:"sort_order"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoicePayment records money applied against an invoice. Payments are
// recorded elsewhere; this service only reads them.
type InvoicePayment struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID    `gorm:"not null;index" json:"business_id"`
	InvoiceID  snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method     string          `gorm:"type:varchar(32)" json:"method,omitempty"`
	Reference  string          `gorm:"type:varchar(128)" json:"reference,omitempty"`
	PaidAt     time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }
