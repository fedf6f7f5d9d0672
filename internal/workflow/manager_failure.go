package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, doc *registry.Document, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.NewComponentLogger(m.stageLogger(ctx, base), "workflow-manager")

	message := m.classifyStageFailure(stg.name, stageErr)
	m.setDocumentFailureState(stg, doc, message)

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(doc.Status)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, details.Kind),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "stage_failure"))
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, doc); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastDoc(doc)
	m.notifyStageError(ctx, stg.name, doc, stageErr)
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return m.getStageFailureMessage(stageName, "failed without error detail")
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = m.getStageFailureMessage(stageName, "failed")
	}
	return message
}

func (m *Manager) getStageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

// setDocumentFailureState moves the document into its stage's failure
// resting state. Degrading stages keep the pipeline moving, so their
// failure statuses also record the fallback fields the next stage reads;
// the finalize stage additionally counts the attempt so retries stay
// bounded.
func (m *Manager) setDocumentFailureState(stg pipelineStage, doc *registry.Document, message string) {
	switch stg.failStatus {
	case registry.StatusClassificationFailed:
		doc.ClassificationDegraded = true
		if doc.DocumentType == "" {
			doc.DocumentType = "unknown"
		}
	case registry.StatusExtractionFailed:
		if doc.ExtractionError == "" {
			doc.ExtractionError = message
		}
	case registry.StatusMetadataStorageFailed:
		doc.FinalizeAttempts++
	}
	doc.SetFailed(stg.failStatus, message)
	if stg.failStatus == registry.StatusMetadataStorageFailed &&
		m.cfg.Workflow.FinalizeRetryLimit > 0 &&
		doc.FinalizeAttempts >= m.cfg.Workflow.FinalizeRetryLimit {
		// Out of resume budget; mark the row so operators can spot it.
		doc.ProgressMessage = fmt.Sprintf("%s (retry limit reached)", message)
	}
}
