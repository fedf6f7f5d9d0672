package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/services"
)

func (m *Manager) componentLogger(component string) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(m.logger, component)
}

func (m *Manager) workerLogger(id int) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger.With(
		logging.String("component", "workflow-worker"),
		logging.Int("worker", id),
	)
}

func (m *Manager) stageLogger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}
	return logging.WithContext(ctx, base)
}

func withStageContext(ctx context.Context, stageName string, doc *registry.Document, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if doc != nil {
		ctx = services.WithDocID(ctx, doc.DocID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
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

func stageContextLabel(stageName string, doc *registry.Document) string {
	if doc == nil {
		return stageName
	}
	return fmt.Sprintf("%s (doc %s)", stageName, doc.DocID)
}
