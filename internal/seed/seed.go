package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/config"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// seedNodeID keeps bootstrap ids apart from the API's snowflake node.
const seedNodeID = 1023

// EnsureBootstrap seeds the configured business, its admin member, the admin
// bearer token and the document counters. Every row is keyed by a primary
// or unique key and inserted with ON CONFLICT DO NOTHING, so running it again
// changes nothing. Without a business name it is a no-op.
func EnsureBootstrap(db *gorm.DB, cfg config.BootstrapConfig) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if strings.TrimSpace(cfg.BusinessName) == "" {
		return nil
	}
	if cfg.BusinessID <= 0 || cfg.AdminUserID <= 0 {
		return errors.New("bootstrap business id and admin user id are required")
	}

	node, err := snowflake.NewNode(seedNodeID)
	if err != nil {
		return err
	}
	rows := bootstrapRows(node, cfg, time.Now().UTC())

	return db.WithContext(context.Background()).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// bootstrapRows lists the seed rows in foreign key order.
func bootstrapRows(node *snowflake.Node, cfg config.BootstrapConfig, now time.Time) []any {
	businessID := snowflake.ID(cfg.BusinessID)
	userID := snowflake.ID(cfg.AdminUserID)

	rows := []any{
		&identitydomain.Business{
			ID:        businessID,
			Name:      strings.TrimSpace(cfg.BusinessName),
			CreatedAt: now,
		},
		&identitydomain.BusinessMember{
			ID:         node.Generate(),
			BusinessID: businessID,
			UserID:     userID,
			Role:       authorization.RoleAdmin,
			CreatedAt:  now,
		},
	}
	if token := strings.TrimSpace(cfg.AdminToken); token != "" {
		rows = append(rows, &identitydomain.AccessToken{
			ID:        node.Generate(),
			UserID:    userID,
			TokenHash: identitydomain.HashToken(token),
			CreatedAt: now,
		})
	}
	for _, kind := range []string{numbering.KindQuote, numbering.KindInvoice} {
		rows = append(rows, &numbering.DocumentSequence{
			BusinessID: businessID,
			Kind:       kind,
			UpdatedAt:  now,
		})
	}
	return rows
}
