package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"gorm.io/datatypes"
)

type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

type Quote struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	BusinessID  snowflake.ID    `gorm:"not null;uniqueIndex:ux_quotes_business_number,priority:1" json:"business_id"`
	ClientID    snowflake.ID    `gorm:"not null;index" json:"client_id"`
	QuoteNumber string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_quotes_business_number,priority:2" json:"quote_number"`
	Status      QuoteStatus     `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	IsLocked    bool            `gorm:"not null;default:false" json:"is_locked"`
	VATRate     decimal.Decimal `gorm:"column:vat_rate;type:decimal(6,4);not null;default:0" json:"vat_rate"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`
	Notes       string          `gorm:"type:text" json:"notes,omitempty"`
	InvoiceID   *snowflake.ID   `gorm:"index" json:"invoice_id,omitempty"`
	AcceptedAt  *time.Time      `json:"accepted_at,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }

type QuoteItem struct {
	ID          snowflake.ID     `gorm:"primaryKey" json:"id"`
	BusinessID  snowflake.ID     `gorm:"not null;index" json:"business_id"`
	QuoteID     snowflake.ID     `gorm:"not null;index" json:"quote_id"`
	Type        lineitem.Type    `gorm:"type:varchar(16);not null" json:"type"`
	Description string           `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit        string           `gorm:"type:varchar(32)" json:"unit,omitempty"`
	UnitPrice   decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	VATRate     *decimal.Decimal `gorm:"column:vat_rate;type:decimal(6,4)" json:"vat_rate,omitempty"`
	Discount    decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	SortOrder   int              `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
}

func (QuoteItem) TableName() string { return "quote_items" }

// QuoteAcceptanceSnapshot freezes the items of a quote when it is accepted.
// Rows are written once and never updated.
type QuoteAcceptanceSnapshot struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID   `gorm:"not null;index" json:"business_id"`
	QuoteID    snowflake.ID   `gorm:"not null;index" json:"quote_id"`
	Items      datatypes.JSON `gorm:"type:jsonb;not null" json:"items"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (QuoteAcceptanceSnapshot) TableName() string { return "quote_acceptance_snapshots" }

// SnapshotItem is one frozen line. VATRate is already resolved against the
// quote rate.
type SnapshotItem struct {
	QuoteItemID snowflake.ID    `json:"quote_item_id"`
	Type        lineitem.Type   `json:"type"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	Discount    decimal.Decimal `json:"discount"`
	SortOrder   int             `json:"sort_order"`
}

func (s QuoteAcceptanceSnapshot) DecodeItems() ([]SnapshotItem, error) {
	if len(s.Items) == 0 {
		return nil, nil
	}
	var items []SnapshotItem
	if err := json.Unmarshal(s.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Item converts the stored row back into the canonical line shape.
func (i QuoteItem) Item() lineitem.Item {
	return lineitem.Item{
		Type:        i.Type,
		Description: i.Description,
		Quantity:    i.Quantity,
		Unit:        i.Unit,
		UnitPrice:   i.UnitPrice,
		VATRate:     i.VATRate,
		Discount:    i.Discount,
	}
}
