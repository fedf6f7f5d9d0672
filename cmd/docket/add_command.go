package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/config"
	"docket/internal/registry"
	"docket/internal/workflow"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var fileName string
	var mimeType string
	var fileSize int64

	cmd := &cobra.Command{
		Use:   "add <source-file-id>",
		Short: "Register a source file for processing",
		Long: `Register a scanned file by its source connector ID without waiting for
the next scheduled intake scan. The daemon picks the document up on its
next polling cycle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceFileID := strings.TrimSpace(args[0])
			if sourceFileID == "" {
				return fmt.Errorf("source file id is required")
			}

			name := strings.TrimSpace(fileName)
			if name == "" {
				name = sourceFileID + ".pdf"
			}
			record, err := workflow.Input{
				SourceFileID: sourceFileID,
				FileName:     name,
				MimeType:     mimeType,
				CreatedAt:    time.Now().UTC(),
				FileSize:     fileSize,
			}.Record()
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				doc, created, err := store.Register(cmd.Context(), record)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Registered document #%d (%s)\n", doc.ID, doc.DocID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Source file already registered as document #%d (%s)\n", doc.ID, humanStatus(doc.Status))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fileName, "name", "", "Original file name (defaults to <id>.pdf)")
	cmd.Flags().StringVar(&mimeType, "mime", "application/pdf", "MIME type reported for the file")
	cmd.Flags().Int64Var(&fileSize, "size", 0, "File size in bytes, when known")
	return cmd
}
