package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Client is the customer a business quotes and invoices.
type Client struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;index" json:"business_id"`
	Name       string       `gorm:"not null" json:"name"`
	Email      string       `gorm:"not null" json:"email"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }
