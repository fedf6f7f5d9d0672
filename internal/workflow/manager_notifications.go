package workflow

import (
	"context"
	"errors"

	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/registry"
)

func (m *Manager) notifyStageError(ctx context.Context, stageName string, doc *registry.Document, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.componentLogger("workflow-manager"))
	if err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": stageContextLabel(stageName, doc),
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}

// notifyFinalized publishes the terminal outcome of a document once the
// finalize stage has landed it.
func (m *Manager) notifyFinalized(ctx context.Context, doc *registry.Document) {
	if doc == nil || doc.ProcessedAt == nil {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOutcome(string(doc.Status))
	}
	if m.notifier == nil {
		return
	}

	var event notifications.Event
	payload := notifications.Payload{
		"file_name":     doc.FileName,
		"document_type": doc.DocumentType,
	}
	switch doc.Status {
	case registry.StatusProcessed:
		event = notifications.EventProcessed
		payload["archive_path"] = doc.CanonicalPath
	case registry.StatusRejected:
		event = notifications.EventRejected
		payload["reason"] = doc.Reasoning
	default:
		return
	}

	logger := logging.WithContext(ctx, m.componentLogger("workflow-manager"))
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send completion notification")
		} else {
			logger.Debug("completion notification failed", logging.Error(err))
		}
	}
}
