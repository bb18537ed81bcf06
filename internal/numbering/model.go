package numbering

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	KindInvoice = "invoice"
	KindQuote   = "quote"
)

// DocumentSequence is the per business counter behind one document kind.
type DocumentSequence struct {
	BusinessID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"business_id"`
	Kind       string       `gorm:"primaryKey;type:varchar(32)" json:"kind"`
	LastValue  int64        `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }

var (
	ErrNumberGenerationFailed = errors.New("number_generation_failed")
	ErrInvalidBusiness        = errors.New("invalid_business")
	ErrInvalidKind            = errors.New("invalid_kind")
)
