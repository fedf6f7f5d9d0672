package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/stage"
)

// Options controls stage execution and registry persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      *registry.Store
	Notifier   notifications.Service
	Handler    stage.Handler
	StageName  string
	Processing registry.Status
	Done       registry.Status
	FailStatus registry.Status
	Doc        *registry.Document
}

// Run executes a stage and applies registry transition semantics used by
// one-shot invocations. The document is moved to the processing status before
// the handler runs, and to Done (unless the handler already advanced it) or
// FailStatus afterwards, with every transition persisted.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("registry store is required")
	}
	if opts.Doc == nil {
		return fmt.Errorf("document is required")
	}

	stageCtx := services.WithStage(services.WithDocID(ctx, opts.Doc.DocID), opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String("file_name", strings.TrimSpace(opts.Doc.FileName)),
		logging.String("source_file_id", strings.TrimSpace(opts.Doc.SourceFileID)),
	)

	setDocProcessingState(opts.Doc, opts.Processing)
	if err := opts.Store.Update(stageCtx, opts.Doc); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := opts.Handler.Prepare(stageCtx, opts.Doc); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}
	if err := opts.Store.Update(stageCtx, opts.Doc); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(stageCtx, opts.Doc); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}

	if opts.Doc.Status == opts.Processing || opts.Doc.Status == "" {
		opts.Doc.Status = opts.Done
	}
	opts.Doc.LastHeartbeat = nil
	if err := opts.Store.Update(stageCtx, opts.Doc); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Doc.Status)),
		logging.String("progress_stage", strings.TrimSpace(opts.Doc.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(opts.Doc.ProgressMessage)),
	)

	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) error {
	message := "stage failed"
	if stageErr != nil {
		details := services.Details(stageErr)
		message = strings.TrimSpace(details.Message)
		if message == "" {
			message = strings.TrimSpace(stageErr.Error())
		}
	}
	failStatus := opts.FailStatus
	if failStatus == "" {
		failStatus = registry.StatusDownloadFailed
	}
	if failStatus == registry.StatusMetadataStorageFailed {
		opts.Doc.FinalizeAttempts++
	}
	opts.Doc.SetFailed(failStatus, message)

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(failStatus)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Error(stageErr),
	)
	if err := opts.Store.Update(ctx, opts.Doc); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	if opts.Notifier != nil && stageErr != nil {
		contextLabel := fmt.Sprintf("%s (doc %s)", opts.StageName, opts.Doc.DocID)
		if err := opts.Notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"error":   stageErr,
			"context": contextLabel,
		}); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}

func setDocProcessingState(doc *registry.Document, processing registry.Status) {
	now := time.Now().UTC()
	doc.Status = processing
	if doc.ProgressStage == "" {
		doc.ProgressStage = deriveStageLabel(processing)
	}
	if doc.ProgressMessage == "" {
		doc.ProgressMessage = fmt.Sprintf("%s started", deriveStageLabel(processing))
	}
	doc.ProgressPercent = 0
	doc.ErrorMessage = ""
	doc.LastHeartbeat = &now
}

func deriveStageLabel(status registry.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
