package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/config"
	"docket/internal/registry"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <documentID>",
		Short: "Show details for one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				arg := strings.TrimSpace(args[0])
				var doc *registry.Document
				if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
					found, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					doc = found
				} else {
					found, err := store.GetByDocID(cmd.Context(), arg)
					if err != nil {
						return err
					}
					doc = found
				}
				if doc == nil {
					return fmt.Errorf("document %q not found", arg)
				}

				rows := buildShowRows(doc)
				table := renderTable(
					[]string{"Field", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func buildShowRows(doc *registry.Document) [][]string {
	rows := [][]string{
		{"ID", strconv.FormatInt(doc.ID, 10)},
		{"Document ID", doc.DocID},
		{"Source file ID", doc.SourceFileID},
		{"File name", doc.FileName},
		{"Status", humanStatus(doc.Status)},
		{"Registered", doc.RegisteredAt.Local().Format(time.DateTime)},
	}
	if doc.DocumentType != "" {
		rows = append(rows, []string{"Type", doc.DocumentType})
		rows = append(rows, []string{"Confidence", strconv.FormatFloat(doc.Confidence, 'f', 2, 64)})
	}
	if doc.ClassificationDegraded {
		rows = append(rows, []string{"Classification degraded", yesNo(true)})
		if doc.PossibleType != "" {
			rows = append(rows, []string{"Possible type", doc.PossibleType})
		}
	}
	if doc.PageCount > 0 {
		rows = append(rows, []string{"Pages", strconv.Itoa(doc.PageCount)})
	}
	if doc.StagedFile != "" {
		rows = append(rows, []string{"Staged file", doc.StagedFile})
	}
	if doc.CanonicalPath != "" {
		rows = append(rows, []string{"Archive path", doc.CanonicalPath})
	}
	if doc.MetadataPath != "" {
		rows = append(rows, []string{"Metadata path", doc.MetadataPath})
	}
	if doc.ExtractionError != "" {
		rows = append(rows, []string{"Extraction error", doc.ExtractionError})
	}
	if doc.FinalizeAttempts > 0 {
		rows = append(rows, []string{"Finalize attempts", strconv.Itoa(doc.FinalizeAttempts)})
	}
	if doc.ErrorMessage != "" {
		rows = append(rows, []string{"Last error", doc.ErrorMessage})
	}
	if doc.ProcessedAt != nil {
		rows = append(rows, []string{"Processed", doc.ProcessedAt.Local().Format(time.DateTime)})
	}
	return rows
}
