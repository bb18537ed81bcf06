package main

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/migration"
	"github.com/smallbiznis/quoteflow/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations and the bootstrap seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				if err := migration.Apply(conn); err != nil {
					return err
				}
				log.Info("migrations applied")
				return seed.EnsureBootstrap(conn, cfg.Bootstrap)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.New("--steps must be positive")
			}
			return runMigration(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				if conn.Dialector.Name() != "postgres" {
					return errors.New("rollback requires a postgres database")
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.Rollback(sqlDB, steps); err != nil {
					return err
				}
				log.Info("migrations rolled back", zap.Int("steps", steps))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

// runMigration starts only the infrastructure graph, runs fn once and stops.
func runMigration(fn func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error) error {
	var (
		conn *gorm.DB
		cfg  config.Config
		log  *zap.Logger
	)
	app := fx.New(
		infrastructure(),
		fx.Populate(&conn, &cfg, &log),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(conn, cfg, log)
}
