package server

import (
	"time"

	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
)

const dateOnlyLayout = "2006-01-02"

type clientResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toClientResponse(client clientdomain.Client) clientResponse {
	return clientResponse{
		ID:        client.ID.String(),
		Name:      client.Name,
		Email:     client.Email,
		CreatedAt: client.CreatedAt,
		UpdatedAt: client.UpdatedAt,
	}
}

type totalsResponse struct {
	Subtotal      string `json:"subtotal"`
	DiscountTotal string `json:"discount_total"`
	VATTotal      string `json:"vat_total"`
	Total         string `json:"total"`
}

type quoteItemResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Quantity    string  `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   string  `json:"unit_price"`
	VATRate     *string `json:"vat_rate,omitempty"`
	Discount    string  `json:"discount"`
	SortOrder   int     `json:"sort_order"`
}

type snapshotItemResponse struct {
	QuoteItemID string `json:"quote_item_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   string `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
	Discount    string `json:"discount"`
}

type snapshotResponse struct {
	ID        string                 `json:"id"`
	Items     []snapshotItemResponse `json:"items"`
	CreatedAt time.Time              `json:"created_at"`
}

type quoteResponse struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	QuoteNumber string     `json:"quote_number"`
	Status      string     `json:"status"`
	IsLocked    bool       `json:"is_locked"`
	VATRate     string     `json:"vat_rate"`
	Currency    string     `json:"currency"`
	Notes       string     `json:"notes,omitempty"`
	InvoiceID   *string    `json:"invoice_id,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type quoteDetailResponse struct {
	quoteResponse
	Items          []quoteItemResponse `json:"items"`
	Totals         totalsResponse      `json:"totals"`
	LatestSnapshot *snapshotResponse   `json:"latest_snapshot,omitempty"`
}

func toQuoteResponse(quote quotedomain.Quote) quoteResponse {
	resp := quoteResponse{
		ID:          quote.ID.String(),
		ClientID:    quote.ClientID.String(),
		QuoteNumber: quote.QuoteNumber,
		Status:      string(quote.Status),
		IsLocked:    quote.IsLocked,
		VATRate:     quote.VATRate.String(),
		Currency:    quote.Currency,
		Notes:       quote.Notes,
		AcceptedAt:  quote.AcceptedAt,
		CreatedAt:   quote.CreatedAt,
		UpdatedAt:   quote.UpdatedAt,
	}
	if quote.InvoiceID != nil {
		id := quote.InvoiceID.String()
		resp.InvoiceID = &id
	}
	return resp
}

func toQuoteDetailResponse(detail quotedomain.QuoteDetail) (quoteDetailResponse, error) {
	places := totals.Places(detail.Quote.Currency)
	resp := quoteDetailResponse{
		quoteResponse: toQuoteResponse(detail.Quote),
		Items:         make([]quoteItemResponse, 0, len(detail.Items)),
		Totals: totalsResponse{
			Subtotal:      money(detail.Totals.Subtotal, places),
			DiscountTotal: money(detail.Totals.DiscountTotal, places),
			VATTotal:      money(detail.Totals.VATTotal, places),
			Total:         money(detail.Totals.Total, places),
		},
	}
	for _, item := range detail.Items {
		out := quoteItemResponse{
			ID:          item.ID.String(),
			Type:        string(item.Type),
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			Unit:        item.Unit,
			UnitPrice:   item.UnitPrice.String(),
			Discount:    money(item.Discount, places),
			SortOrder:   item.SortOrder,
		}
		if item.VATRate != nil {
			rate := item.VATRate.String()
			out.VATRate = &rate
		}
		resp.Items = append(resp.Items, out)
	}

	if snap := detail.LatestSnapshot; snap != nil {
		items, err := snap.DecodeItems()
		if err != nil {
			return quoteDetailResponse{}, err
		}
		out := &snapshotResponse{
			ID:        snap.ID.String(),
			Items:     make([]snapshotItemResponse, 0, len(items)),
			CreatedAt: snap.CreatedAt,
		}
		for _, item := range items {
			out.Items = append(out.Items, snapshotItemResponse{
				QuoteItemID: item.QuoteItemID.String(),
				Type:        string(item.Type),
				Description: item.Description,
				Quantity:    item.Quantity.String(),
				Unit:        item.Unit,
				UnitPrice:   item.UnitPrice.String(),
				VATRate:     item.VATRate.String(),
				Discount:    money(item.Discount, places),
			})
		}
		resp.LatestSnapshot = out
	}
	return resp, nil
}

type invoiceResponse struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	QuoteID       *string   `json:"quote_id,omitempty"`
	InvoiceNumber string    `json:"invoice_number"`
	IssueDate     string    `json:"issue_date"`
	DueDate       string    `json:"due_date"`
	Currency      string    `json:"currency"`
	Subtotal      string    `json:"subtotal"`
	DiscountTotal string    `json:"discount_total"`
	VATTotal      string    `json:"vat_total"`
	Total         string    `json:"total"`
	AmountPaid    string    `json:"amount_paid"`
	BalanceDue    string    `json:"balance_due"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	Terms         string    `json:"terms,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type invoiceItemResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Description  string         `json:"description"`
	Quantity     string         `json:"quantity"`
	Unit         string         `json:"unit,omitempty"`
	UnitPrice    string         `json:"unit_price"`
	VATRate      string         `json:"vat_rate"`
	LineSubtotal string         `json:"line_subtotal"`
	LineDiscount string         `json:"line_discount"`
	LineVAT      string         `json:"line_vat"`
	LineTotal    string         `json:"line_total"`
	SortOrder    int            `json:"sort_order"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID        string    `json:"id"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method,omitempty"`
	Reference string    `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

type computedTotalsResponse struct {
	totalsResponse
	AmountPaid string `json:"amount_paid"`
	BalanceDue string `json:"balance_due"`
	Consistent bool   `json:"consistent"`
}

type invoiceDetailResponse struct {
	invoiceResponse
	Items    []invoiceItemResponse  `json:"items"`
	Payments []paymentResponse      `json:"payments"`
	Totals   computedTotalsResponse `json:"totals"`
}

type createFromQuoteResponse struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	QuoteID       string    `json:"quote_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	Message       string    `json:"message"`
}

func toInvoiceResponse(invoice invoicedomain.Invoice) invoiceResponse {
	places := totals.Places(invoice.Currency)
	resp := invoiceResponse{
		ID:            invoice.ID.String(),
		ClientID:      invoice.ClientID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.IssueDate.Format(dateOnlyLayout),
		DueDate:       invoice.DueDate.Format(dateOnlyLayout),
		Currency:      invoice.Currency,
		Subtotal:      money(invoice.Subtotal, places),
		DiscountTotal: money(invoice.DiscountTotal, places),
		VATTotal:      money(invoice.VATTotal, places),
		Total:         money(invoice.Total, places),
		AmountPaid:    money(invoice.AmountPaid, places),
		BalanceDue:    money(invoice.BalanceDue, places),
		Status:        string(invoice.Status),
		Notes:         invoice.Notes,
		Terms:         invoice.Terms,
		CreatedAt:     invoice.CreatedAt,
		UpdatedAt:     invoice.UpdatedAt,
	}
	if invoice.QuoteID != nil {
		id := invoice.QuoteID.String()
		resp.QuoteID = &id
	}
	return resp
}

func toInvoiceDetailResponse(detail invoicedomain.InvoiceDetail) invoiceDetailResponse {
	places := totals.Places(detail.Invoice.Currency)
	resp := invoiceDetailResponse{
		invoiceResponse: toInvoiceResponse(detail.Invoice),
		Items:           make([]invoiceItemResponse, 0, len(detail.Items)),
		Payments:        make([]paymentResponse, 0, len(detail.Payments)),
		Totals: computedTotalsResponse{
			totalsResponse: totalsResponse{
				Subtotal:      money(detail.Totals.Subtotal, places),
				DiscountTotal: money(detail.Totals.DiscountTotal, places),
				VATTotal:      money(detail.Totals.VATTotal, places),
				Total:         money(detail.Totals.Total, places),
			},
			AmountPaid: money(detail.Totals.AmountPaid, places),
			BalanceDue: money(detail.Totals.BalanceDue, places),
			Consistent: detail.Totals.Consistent,
		},
	}
	for _, item := range detail.Items {
		resp.Items = append(resp.Items, invoiceItemResponse{
			ID:           item.ID.String(),
			Type:         string(item.Type),
			Description:  item.Description,
			Quantity:     item.Quantity.String(),
			Unit:         item.Unit,
			UnitPrice:    item.UnitPrice.String(),
			VATRate:      item.VATRate.String(),
			LineSubtotal: money(item.LineSubtotal, places),
			LineDiscount: money(item.LineDiscount, places),
			LineVAT:      money(item.LineVAT, places),
			LineTotal:    money(item.LineTotal, places),
			SortOrder:    item.SortOrder,
			Metadata:     item.Metadata,
		})
	}
	for _, payment := range detail.Payments {
		resp.Payments = append(resp.Payments, paymentResponse{
			ID:        payment.ID.String(),
			Amount:    money(payment.Amount, places),
			Method:    payment.Method,
			Reference: payment.Reference,
			PaidAt:    payment.PaidAt,
		})
	}
	return resp
}

func money(value decimal.Decimal, places int32) string {
	return value.StringFixed(places)
}
