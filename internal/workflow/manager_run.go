package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docket/internal/logging"
	"docket/internal/registry"
)

// Start begins background processing with the configured worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	workers := m.cfg.Workflow.MaxActiveRuns
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	go m.runReclaimer(runCtx)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}

	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// runReclaimer periodically returns abandoned in-flight documents to the
// start of their stage so another worker can pick them up.
func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	logger := m.componentLogger("workflow-reclaimer")

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil {
			logger.Warn("reclaim stale processing failed; stuck documents may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check registry database access"),
			)
		}
	}
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.workerLogger(id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doc, stg, err := m.claimNextDocument(ctx)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if doc == nil {
			m.waitForDocumentOrShutdown(ctx)
			continue
		}

		if err := m.processDocument(ctx, logger, stg, doc); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// claimNextDocument walks the stages from the end of the pipeline backwards
// and leases the first eligible document. Draining late stages first keeps
// in-flight documents moving to completion before new ones enter.
func (m *Manager) claimNextDocument(ctx context.Context) (*registry.Document, pipelineStage, error) {
	stages := m.configuredStages()
	for i := len(stages) - 1; i >= 0; i-- {
		stg := stages[i]
		doc, err := m.store.ClaimNext(ctx, stg.claim)
		if err != nil {
			return nil, pipelineStage{}, err
		}
		if doc != nil {
			return doc, stg, nil
		}
	}
	return nil, pipelineStage{}, nil
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next document",
		logging.Error(err),
		logging.String(logging.FieldEventType, "registry_claim_failed"),
		logging.String(logging.FieldErrorHint, "check registry database access"),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForDocumentOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
