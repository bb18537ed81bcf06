package migration

import (
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("schema migrations skipped", zap.Bool("auto_migrate", false))
			return nil
		}
		if err := Apply(conn); err != nil {
			return err
		}
		return seed.EnsureBootstrap(conn, cfg.Bootstrap)
	}),
)
