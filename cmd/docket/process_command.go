package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"docket/internal/archiving"
	"docket/internal/classifying"
	"docket/internal/config"
	"docket/internal/downloading"
	"docket/internal/extracting"
	"docket/internal/finalizing"
	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/registry"
	"docket/internal/stage"
	"docket/internal/stageexec"
	"docket/internal/workflow"
)

type pipelineStep struct {
	name       string
	handler    stage.Handler
	processing registry.Status
	done       registry.Status
	fail       registry.Status
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <documentID>",
		Short: "Run the pipeline for one document in the foreground",
		Long: `Drive a single document through its remaining stages without the daemon.
Each stage transition is persisted, so an interrupted run resumes from the
last completed stage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := logging.New(logging.Options{
					Level:       cfg.Logging.Level,
					Format:      cfg.Logging.Format,
					OutputPaths: []string{"stdout"},
				})
				if err != nil {
					return fmt.Errorf("setup logging: %w", err)
				}

				steps, err := buildPipelineSteps(cfg, store, logger)
				if err != nil {
					return err
				}
				result, err := runPipeline(cmd.Context(), cmd, cfg, store, logger, steps, id)
				if err != nil {
					return err
				}
				printPipelineResult(cmd, result)
				return nil
			})
		},
	}
}

func buildPipelineSteps(cfg *config.Config, store *registry.Store, logger *slog.Logger) ([]pipelineStep, error) {
	archiver, err := archiving.NewArchiver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("archive stage: %w", err)
	}
	extractor, err := extracting.NewExtractor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("extract stage: %w", err)
	}
	finalizer, err := finalizing.NewFinalizer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("finalize stage: %w", err)
	}

	return []pipelineStep{
		{
			name:       "download",
			handler:    downloading.NewDownloader(cfg, store, logger),
			processing: registry.StatusDownloading,
			done:       registry.StatusDownloaded,
			fail:       registry.StatusDownloadFailed,
		},
		{
			name:       "classify",
			handler:    classifying.NewClassifier(cfg, logger),
			processing: registry.StatusClassifying,
			done:       registry.StatusClassified,
			fail:       registry.StatusClassificationFailed,
		},
		{
			name:       "store",
			handler:    archiver,
			processing: registry.StatusStoring,
			done:       registry.StatusStored,
			fail:       registry.StatusStoreFailed,
		},
		{
			name:       "extract",
			handler:    extractor,
			processing: registry.StatusExtracting,
			done:       registry.StatusExtracted,
			fail:       registry.StatusExtractionFailed,
		},
		{
			name:       "finalize",
			handler:    finalizer,
			processing: registry.StatusSavingMetadata,
			done:       registry.StatusProcessed,
			fail:       registry.StatusMetadataStorageFailed,
		},
	}, nil
}

// nextStep selects the step that applies to the document's current status,
// honoring the same eligibility rules the daemon's claim query enforces.
func nextStep(steps []pipelineStep, doc *registry.Document, finalizeLimit int) (pipelineStep, bool, error) {
	byName := make(map[string]pipelineStep, len(steps))
	for _, step := range steps {
		byName[step.name] = step
	}

	switch doc.Status {
	case registry.StatusNew:
		return byName["download"], true, nil
	case registry.StatusDownloaded:
		return byName["classify"], true, nil
	case registry.StatusClassified, registry.StatusClassificationFailed:
		return byName["store"], true, nil
	case registry.StatusStored:
		return byName["extract"], true, nil
	case registry.StatusExtracted:
		return byName["finalize"], true, nil
	case registry.StatusExtractionFailed:
		if doc.ProcessedAt != nil {
			return pipelineStep{}, false, nil
		}
		return byName["finalize"], true, nil
	case registry.StatusMetadataStorageFailed:
		if finalizeLimit > 0 && doc.FinalizeAttempts >= finalizeLimit {
			return pipelineStep{}, false, fmt.Errorf("document %d exhausted its finalize retry budget (%d attempts)", doc.ID, doc.FinalizeAttempts)
		}
		return byName["finalize"], true, nil
	}
	return pipelineStep{}, false, nil
}

func runPipeline(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store *registry.Store, logger *slog.Logger, steps []pipelineStep, id int64) (workflow.Output, error) {
	out := cmd.OutOrStdout()
	notifier := notifications.NewService(cfg)

	// One pass per stage plus one finalize resume is the most a healthy run
	// needs; the bound guards against a handler that never advances status.
	for iterations := 0; iterations <= len(steps)+1; iterations++ {
		doc, err := store.GetByID(ctx, id)
		if err != nil {
			return workflow.Output{}, err
		}

		step, ok, err := nextStep(steps, doc, cfg.Workflow.FinalizeRetryLimit)
		if err != nil {
			return workflow.Output{}, err
		}
		if !ok {
			return workflow.OutputOf(doc), nil
		}

		fmt.Fprintf(out, "Running %s for document #%d (%s)\n", step.name, doc.ID, doc.FileName)
		runErr := stageexec.Run(ctx, stageexec.Options{
			Logger:     logger,
			Store:      store,
			Notifier:   notifier,
			Handler:    step.handler,
			StageName:  step.name,
			Processing: step.processing,
			Done:       step.done,
			FailStatus: step.fail,
			Doc:        doc,
		})
		if runErr != nil {
			return workflow.Output{}, fmt.Errorf("%s stage: %w", step.name, runErr)
		}
		if doc.IsFinal() {
			return workflow.OutputOf(doc), nil
		}
	}
	return workflow.Output{}, fmt.Errorf("pipeline made no progress for document %d", id)
}

func printPipelineResult(cmd *cobra.Command, result workflow.Output) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document %s (#%d) finished as %s\n", result.DocID, result.RegistryID, humanStatus(result.Status))
	if result.DocumentType != "" {
		fmt.Fprintf(out, "  type: %s (confidence %.2f)\n", result.DocumentType, result.Confidence)
	}
	if result.CanonicalPath != "" {
		fmt.Fprintf(out, "  archive: %s\n", result.CanonicalPath)
	}
	if result.MetadataPath != "" {
		fmt.Fprintf(out, "  metadata: %s\n", result.MetadataPath)
	}
	if result.StagingCleaned {
		fmt.Fprintln(out, "  staging: cleaned")
	}
	if result.Err != "" {
		fmt.Fprintf(out, "  error: %s\n", result.Err)
	}
}
