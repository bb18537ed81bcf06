package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Business is a tenant: a contracting firm that issues quotes and invoices.
type Business struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Business) TableName() string { return "businesses" }

// BusinessMember links a user from the identity provider to a business role.
type BusinessMember struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;uniqueIndex:ux_business_members_user" json:"business_id"`
	UserID     snowflake.ID `gorm:"not null;uniqueIndex:ux_business_members_user" json:"user_id"`
	Role       string       `gorm:"type:text;not null" json:"role"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (BusinessMember) TableName() string { return "business_members" }

// AccessToken is a bearer token minted by the identity provider. Only the
// SHA-256 hash is stored.
type AccessToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index"`
	TokenHash string       `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (AccessToken) TableName() string { return "access_tokens" }
