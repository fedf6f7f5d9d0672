package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/stage"
)

func (m *Manager) processDocument(ctx context.Context, workerLogger *slog.Logger, stg pipelineStage, doc *registry.Document) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, stg.name, doc, requestID)
	stageLogger := m.stageLogger(stageCtx, workerLogger)
	if aware, ok := stg.handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	// The claim already flipped the status; initialize progress for the
	// attempt and persist before any work happens.
	doc.InitProgress(deriveStageLabel(stg.claim.To), fmt.Sprintf("%s started", deriveStageLabel(stg.claim.To)))
	if err := m.store.Update(stageCtx, doc); err != nil {
		wrapped := fmt.Errorf("persist processing transition: %w", err)
		stageLogger.Error("failed to persist processing transition", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	m.setLastDoc(doc)

	return m.executeStage(stageCtx, stageLogger, stg, doc)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, doc *registry.Document) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.claim.To)),
		logging.String("file_name", strings.TrimSpace(doc.FileName)),
		logging.String("source_file_id", strings.TrimSpace(doc.SourceFileID)),
	)

	handler := stg.handler
	if handler == nil {
		err := errors.New("stage handler unavailable")
		stageLogger.Warn("missing stage handler", logging.String("stage", stg.name))
		doc.SetFailed(stg.failStatus, fmt.Sprintf("stage %s missing handler", stg.name))
		if updateErr := m.store.Update(ctx, doc); updateErr != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(updateErr))
		}
		m.setLastError(err)
		return err
	}

	if err := handler.Prepare(ctx, doc); err != nil {
		m.handleStageFailure(ctx, stg, doc, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, doc); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg.name, handler, doc)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg, doc, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if doc.Status == stg.claim.To || doc.Status == "" {
		doc.Status = stg.doneStatus
	}
	doc.LastHeartbeat = nil
	if err := m.store.Update(ctx, doc); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(doc.Status)),
		logging.String("progress_stage", strings.TrimSpace(doc.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(doc.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastDoc(doc)
	m.notifyFinalized(ctx, doc)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stageName string, handler stage.Handler, doc *registry.Document) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, doc.ID)

	start := time.Now()
	if m.metrics != nil {
		m.metrics.StartStage()
	}
	execErr := handler.Execute(ctx, doc)
	if m.metrics != nil {
		m.metrics.FinishStage(stageName, time.Since(start), execErr)
	}
	hbCancel()
	hbWG.Wait()
	return execErr
}
