// Package extracting implements the extraction stage: pulling structured
// fields out of classified documents. Documents gated to unknown skip the
// model entirely; model failures degrade the document rather than halting
// it, since the file itself is already safe in the archive.
package extracting

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/objectstore"
	"docket/internal/pdftext"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/services/docai"
	"docket/internal/stage"
	"docket/internal/stageexec"
)

// ModelClient is the slice of the model client the extractor needs.
type ModelClient interface {
	Extract(ctx context.Context, docType document.Type, input docai.ExtractInput) (*document.Payload, error)
	HealthCheck(ctx context.Context) error
}

// Extractor runs structured field extraction on eligible documents.
type Extractor struct {
	cfg     *config.Config
	logger  *slog.Logger
	model   ModelClient
	objects objectstore.Store
	exec    *stageexec.Executor
	policy  stageexec.Policy
	inspect func(path string, maxChars int) (pdftext.Info, error)
}

// NewExtractor constructs the extract stage handler. The object store is
// used to restore the staged file when a resumed run finds staging already
// cleaned.
func NewExtractor(cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	objects, err := objectstore.NewFS(cfg.Paths.ArchiveDir)
	if err != nil {
		return nil, err
	}
	return NewExtractorWithDependencies(cfg, logger, docai.NewClient(cfg.ExtractorLLM()), objects), nil
}

// NewExtractorWithDependencies allows injecting collaborators (used in
// tests).
func NewExtractorWithDependencies(cfg *config.Config, logger *slog.Logger, model ModelClient, objects objectstore.Store) *Extractor {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = logging.NewComponentLogger(stageLogger, "extractor")
	}
	return &Extractor{
		cfg:     cfg,
		logger:  stageLogger,
		model:   model,
		objects: objects,
		exec:    stageexec.NewExecutor(stageLogger),
		policy:  stageexec.PolicyFromConfig(cfg.Retry.Extract),
		inspect: pdftext.Inspect,
	}
}

// SetLogger installs a run-scoped logger.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logging.NewComponentLogger(logger, "extractor")
	}
}

func (e *Extractor) Prepare(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, e.logger)
	if !document.ParseType(doc.DocumentType).Extractable() {
		doc.SetProgress("Extracting", "Document not eligible for extraction", 0)
		return nil
	}
	if doc.StagedFile != "" {
		if _, err := os.Stat(doc.StagedFile); err == nil {
			doc.SetProgress("Extracting", "Preparing extraction", 0)
			return nil
		}
	}
	// The staged copy may be gone after a crash-resume; the archive holds
	// the authoritative copy once the store stage completed.
	restored, err := e.restoreFromArchive(ctx, doc)
	if err != nil {
		return services.Wrap(services.ErrValidation, "extract", "restore staged file",
			"staged file missing and archive copy unavailable", err)
	}
	logger.Info("restored staged file from archive", logging.String("staged_file", restored))
	doc.StagedFile = restored
	doc.SetProgress("Extracting", "Preparing extraction", 0)
	return nil
}

func (e *Extractor) restoreFromArchive(ctx context.Context, doc *registry.Document) (string, error) {
	if strings.TrimSpace(doc.CanonicalPath) == "" {
		return "", os.ErrNotExist
	}
	rc, err := e.objects.Open(ctx, doc.CanonicalPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(e.cfg.Paths.StagingDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(e.cfg.Paths.StagingDir, filepath.Base(doc.CanonicalPath))
	tmp, err := os.CreateTemp(e.cfg.Paths.StagingDir, ".restore-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (e *Extractor) Execute(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, e.logger)

	docType := document.ParseType(doc.DocumentType)
	if !docType.Extractable() {
		doc.ExtractedJSON = ""
		doc.SetProgressComplete("Extracting", "Extraction skipped")
		logger.Info("extraction skipped", logging.String("document_type", doc.DocumentType))
		return nil
	}

	if doc.ExtractedJSON != "" {
		if _, err := document.DecodePayload(doc.ExtractedJSON); err == nil {
			doc.SetProgressComplete("Extracting", "Already extracted")
			logger.Info("extraction already present, skipping")
			return nil
		}
		doc.ExtractedJSON = ""
	}

	info, err := e.inspect(doc.StagedFile, e.cfg.Classifier.ExcerptChars)
	if err != nil || strings.TrimSpace(info.Excerpt) == "" {
		e.degrade(doc, "document text could not be read for extraction")
		return nil
	}
	doc.SetProgress("Extracting", "Consulting extraction model", 40)

	outcome := stageexec.Attempt(ctx, e.exec, "docai.extract", e.policy, func(ctx context.Context) (*document.Payload, error) {
		return e.model.Extract(ctx, docType, docai.ExtractInput{
			FileName: doc.FileName,
			Excerpt:  info.Excerpt,
		})
	}).OrDefault(nil)
	if outcome.Degraded() {
		logger.Warn("extraction model failed, continuing degraded", logging.Error(outcome.Err()))
		e.degrade(doc, "extraction failed: "+services.Details(outcome.Err()).Message)
		return nil
	}
	encoded, err := document.EncodePayload(outcome.Value())
	if err != nil {
		e.degrade(doc, "extraction produced an invalid payload")
		return nil
	}

	doc.ExtractedJSON = encoded
	doc.ExtractionError = ""
	doc.SetProgressComplete("Extracting", "Extraction complete")
	logger.Info("extraction complete", logging.String("document_type", doc.DocumentType))
	return nil
}

// degrade records the extraction failure and parks the document in a state
// the finalize stage still claims. The archived file is untouched.
func (e *Extractor) degrade(doc *registry.Document, reason string) {
	doc.Status = registry.StatusExtractionFailed
	doc.ExtractionError = reason
	doc.ExtractedJSON = ""
	doc.ErrorMessage = reason
	doc.SetProgressComplete("Extracting", "Extraction degraded: "+reason)
}

func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if err := e.model.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("extractor", err.Error())
	}
	return stage.Healthy("extractor")
}
