package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/observability"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quoteflow",
		Short:         "Quote to invoice service",
		Long:          "quoteflow serves the quote and invoice HTTP API and manages its database schema.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

// infrastructure is shared by every subcommand that touches the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
