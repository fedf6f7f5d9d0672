// Package classifying implements the classification stage: it reads the
// staged file's text layer and asks the model for a document type. The
// stage never halts the pipeline; when classification cannot be completed
// the document degrades to unknown and continues toward the archive.
package classifying

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/pdftext"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/services/docai"
	"docket/internal/stage"
	"docket/internal/stageexec"
)

// ModelClient is the slice of the model client the classifier needs.
type ModelClient interface {
	Classify(ctx context.Context, input docai.ClassifyInput) (document.Classification, error)
	HealthCheck(ctx context.Context) error
}

// Classifier assigns a document type with a confidence gate.
type Classifier struct {
	cfg     *config.Config
	logger  *slog.Logger
	model   ModelClient
	exec    *stageexec.Executor
	policy  stageexec.Policy
	inspect func(path string, maxChars int) (pdftext.Info, error)
}

// NewClassifier constructs the classify stage handler with the configured
// model endpoint.
func NewClassifier(cfg *config.Config, logger *slog.Logger) *Classifier {
	return NewClassifierWithDependencies(cfg, logger, docai.NewClient(cfg.Classifier.LLM))
}

// NewClassifierWithDependencies allows injecting the model client (used in
// tests).
func NewClassifierWithDependencies(cfg *config.Config, logger *slog.Logger, model ModelClient) *Classifier {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = logging.NewComponentLogger(stageLogger, "classifier")
	}
	return &Classifier{
		cfg:     cfg,
		logger:  stageLogger,
		model:   model,
		exec:    stageexec.NewExecutor(stageLogger),
		policy:  stageexec.PolicyFromConfig(cfg.Retry.Classify),
		inspect: pdftext.Inspect,
	}
}

// SetLogger installs a run-scoped logger.
func (c *Classifier) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logging.NewComponentLogger(logger, "classifier")
	}
}

func (c *Classifier) Prepare(ctx context.Context, doc *registry.Document) error {
	if strings.TrimSpace(doc.StagedFile) == "" {
		return services.Wrap(services.ErrValidation, "classify", "validate inputs", "no staged file present; run download before classification", nil)
	}
	if _, err := os.Stat(doc.StagedFile); err != nil {
		return services.Wrap(services.ErrValidation, "classify", "validate inputs", "staged file missing from disk", err)
	}
	doc.SetProgress("Classifying", "Reading document text", 0)
	return nil
}

func (c *Classifier) Execute(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, c.logger)

	info, err := c.inspect(doc.StagedFile, c.cfg.Classifier.ExcerptChars)
	if err != nil {
		logger.Warn("staged file is not a readable PDF", logging.Error(err))
		c.degrade(doc, document.TypeUnknown, "document text could not be read")
		return nil
	}
	doc.PageCount = info.PageCount
	if strings.TrimSpace(info.Excerpt) == "" {
		logger.Info("document has no text layer, classification degraded")
		c.degrade(doc, document.TypeUnknown, "document has no text layer")
		return nil
	}
	doc.SetProgress("Classifying", "Consulting classification model", 40)

	outcome := stageexec.Attempt(ctx, c.exec, "docai.classify", c.policy, func(ctx context.Context) (document.Classification, error) {
		return c.model.Classify(ctx, docai.ClassifyInput{
			FileName:  doc.FileName,
			PageCount: doc.PageCount,
			Excerpt:   info.Excerpt,
		})
	}).OrDefault(document.Classification{Type: document.TypeUnknown})
	if outcome.Degraded() {
		logger.Warn("classification model unavailable, continuing degraded", logging.Error(outcome.Err()))
		c.degrade(doc, document.TypeUnknown, "classification service unavailable")
		return nil
	}

	result := outcome.Value()
	effective, eligible := document.Gate(result, c.cfg.Classifier.ConfidenceThreshold)
	doc.DocumentType = string(effective)
	doc.Confidence = result.Confidence
	doc.Reasoning = result.Reasoning
	if effective == document.TypeUnknown && result.Type != document.TypeUnknown {
		// Below-threshold guesses are preserved for operators even though
		// the pipeline treats the document as unknown.
		doc.PossibleType = string(result.Type)
	}
	doc.SetProgressComplete("Classifying", "Classification complete")
	logger.Info("document classified",
		logging.String("document_type", doc.DocumentType),
		logging.Float64("confidence", doc.Confidence),
		logging.Bool("extractable", eligible),
	)
	return nil
}

// degrade records a classification failure as a resting state the archive
// stage still picks up. The document type falls back to unknown so the
// canonical path stays derivable.
func (c *Classifier) degrade(doc *registry.Document, guess document.Type, reason string) {
	doc.Status = registry.StatusClassificationFailed
	doc.ClassificationDegraded = true
	doc.DocumentType = string(document.TypeUnknown)
	if guess != document.TypeUnknown {
		doc.PossibleType = string(guess)
	}
	doc.Confidence = 0
	doc.Reasoning = "classification failed: " + reason
	doc.ErrorMessage = reason
	doc.SetProgressComplete("Classifying", "Classification degraded: "+reason)
}

func (c *Classifier) HealthCheck(ctx context.Context) stage.Health {
	if err := c.model.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("classifier", err.Error())
	}
	return stage.Healthy("classifier")
}
