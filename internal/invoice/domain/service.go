package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
)

type CreateInvoiceRequest struct {
	ClientID      string           `json:"client_id"`
	InvoiceNumber string           `json:"invoice_number"`
	QuoteID       *string          `json:"quote_id"`
	IssueDate     *string          `json:"issue_date"`
	DueDate       *string          `json:"due_date"`
	Currency      string           `json:"currency"`
	VATRate       *decimal.Decimal `json:"vat_rate"`
	Notes         string           `json:"notes"`
	Terms         *string          `json:"terms"`
	Items         []lineitem.Item  `json:"items"`
}

// UpdateInvoiceRequest carries the editable header fields. Status is only
// present so a smuggled status change can be detected and refused.
type UpdateInvoiceRequest struct {
	ID        string  `json:"-"`
	IssueDate *string `json:"issue_date"`
	DueDate   *string `json:"due_date"`
	Currency  *string `json:"currency"`
	Notes     *string `json:"notes"`
	Terms     *string `json:"terms"`
	Status    *string `json:"status"`
}

type ChangeStatusRequest struct {
	ID     string `json:"-"`
	Status string `json:"status"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status   string
	ClientID string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// CreateFromQuoteResult is returned by the quote conversion.
type CreateFromQuoteResult struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	QuoteID       snowflake.ID
	Status        InvoiceStatus
	CreatedAt     time.Time
	Message       string
}

// ComputedTotals are derived from the persisted items and payments, not
// copied from the header.
type ComputedTotals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	VATTotal      decimal.Decimal
	Total         decimal.Decimal
	AmountPaid    decimal.Decimal
	BalanceDue    decimal.Decimal
	Consistent    bool
}

type InvoiceDetail struct {
	Invoice  Invoice
	Items    []InvoiceItem
	Payments []InvoicePayment
	Totals   ComputedTotals
}

type Service interface {
	CreateFromQuote(ctx context.Context, quoteID string) (CreateFromQuoteResult, error)
	Create(ctx context.Context, req CreateInvoiceRequest) (InvoiceDetail, error)
	GetByID(ctx context.Context, id string) (InvoiceDetail, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Update(ctx context.Context, req UpdateInvoiceRequest) (Invoice, error)
	ChangeStatus(ctx context.Context, req ChangeStatusRequest) (Invoice, error)
}
