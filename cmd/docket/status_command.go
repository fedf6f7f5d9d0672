package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docket/internal/config"
	"docket/internal/registry"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Registry", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Total documents", statusInfo, strconv.Itoa(health.Total), colorize))
				fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, strconv.Itoa(health.Pending), colorize))
				fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, strconv.Itoa(health.Processing), colorize))
				fmt.Fprintln(out, renderStatusLine("Halted", haltedKind(health.Failed), strconv.Itoa(health.Failed), colorize))
				fmt.Fprintln(out, renderStatusLine("Processed", statusOK, strconv.Itoa(health.Processed), colorize))
				fmt.Fprintln(out, renderStatusLine("Rejected", statusInfo, strconv.Itoa(health.Rejected), colorize))
				fmt.Fprintln(out)

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildStatusRows(stats)
				if len(rows) > 0 {
					for _, line := range renderSectionHeader("Documents by status", colorize) {
						fmt.Fprintln(out, line)
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Status", "Count"},
						rows,
						[]columnAlignment{alignLeft, alignRight},
					))
					fmt.Fprintln(out)
				}

				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, db.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", boolKind(db.DatabaseReadable), yesNo(db.DatabaseReadable), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(db.IntegrityCheck), yesNo(db.IntegrityCheck), colorize))
				fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, db.SchemaVersion, colorize))
				if len(db.MissingColumns) > 0 {
					fmt.Fprintln(out, renderStatusLine("Missing columns", statusError, fmt.Sprintf("%v", db.MissingColumns), colorize))
				}
				if db.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, db.Error, colorize))
				}
				return nil
			})
		},
	}
}

// buildStatusRows orders the per-status counts in pipeline order, skipping
// statuses with no documents.
func buildStatusRows(stats map[registry.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range registry.AllStatuses() {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{humanStatus(status), strconv.Itoa(count)})
	}
	return rows
}

func haltedKind(count int) statusKind {
	if count > 0 {
		return statusWarn
	}
	return statusOK
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
