package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docket/internal/config"
	"docket/internal/intake"
	"docket/internal/logging"
	"docket/internal/registry"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a source intake scan immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := logging.New(logging.Options{
					Level:       cfg.Logging.Level,
					Format:      cfg.Logging.Format,
					OutputPaths: []string{"stdout"},
				})
				if err != nil {
					return fmt.Errorf("setup logging: %w", err)
				}

				scanner := intake.NewScanner(cfg, store, logger)
				result, err := scanner.Scan(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
				return nil
			})
		},
	}
}
