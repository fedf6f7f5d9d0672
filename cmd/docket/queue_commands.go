package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/config"
	"docket/internal/registry"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the document queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]registry.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := registry.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				docs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "File", "Status", "Type", "Registered", "Error"},
					buildQueueListRows(docs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by document status (repeatable)")
	return cmd
}

func buildQueueListRows(docs []*registry.Document) [][]string {
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, []string{
			strconv.FormatInt(doc.ID, 10),
			doc.FileName,
			humanStatus(doc.Status),
			doc.DocumentType,
			doc.RegisteredAt.Local().Format(time.DateTime),
			truncateMessage(doc.ErrorMessage, 48),
		})
	}
	return rows
}

func truncateMessage(message string, limit int) string {
	message = strings.TrimSpace(message)
	if limit <= 3 || len(message) <= limit {
		return message
	}
	return message[:limit-3] + "..."
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearFinished bool
	var clearHalted bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove documents from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearFinished && clearHalted {
				return errors.New("specify only one of --finished or --halted")
			}
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				switch {
				case clearFinished:
					removed, err = store.ClearFinished(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d finished documents\n", removed)
				case clearHalted:
					removed, err = store.ClearHalted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d halted documents\n", removed)
				default:
					removed, err = store.Clear(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d documents\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFinished, "finished", false, "Remove only processed and rejected documents")
	cmd.Flags().BoolVar(&clearHalted, "halted", false, "Remove only halted documents")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [documentID...]",
		Short: "Return halted documents to their stage start",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid document id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				updated, err := store.RetryHalted(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d documents for retry\n", updated)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-flight documents to their stage start",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				updated, err := store.ResetStuckProcessing(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d documents\n", updated)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show registry health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nHalted: %d\nProcessed: %d\nRejected: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Failed,
					health.Processed,
					health.Rejected,
				)
				return nil
			})
		},
	}
}
