package main

import (
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/migration"
	"github.com/smallbiznis/quoteflow/internal/scheduler"
	"github.com/smallbiznis/quoteflow/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app := fx.New(
		infrastructure(),
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
	return app.Err()
}
