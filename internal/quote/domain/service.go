package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/totals"
)

type CreateQuoteRequest struct {
	ClientID string           `json:"client_id"`
	Currency string           `json:"currency"`
	VATRate  *decimal.Decimal `json:"vat_rate"`
	Notes    string           `json:"notes"`
	Items    []lineitem.Item  `json:"items"`
}

type ReplaceItemsRequest struct {
	ID    string
	Items []lineitem.Item `json:"items"`
}

type QuoteDetail struct {
	Quote          Quote
	Items          []QuoteItem
	Totals         totals.Totals
	LatestSnapshot *QuoteAcceptanceSnapshot
}

type Service interface {
	Create(ctx context.Context, req CreateQuoteRequest) (QuoteDetail, error)
	Get(ctx context.Context, id string) (QuoteDetail, error)
	ReplaceItems(ctx context.Context, req ReplaceItemsRequest) (QuoteDetail, error)
	Send(ctx context.Context, id string) (Quote, error)
	Accept(ctx context.Context, id string) (QuoteDetail, error)
	Reject(ctx context.Context, id string) (Quote, error)
}
