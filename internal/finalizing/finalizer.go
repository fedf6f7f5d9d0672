// Package finalizing implements the last pipeline stage: persisting the
// metadata sidecar next to the archived document and settling the terminal
// status. Metadata persistence is the only step after the safe point that
// may fail and be retried; once it lands the run is decided for good.
package finalizing

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/objectstore"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/stage"
	"docket/internal/stageexec"
)

// Metadata is the sidecar document written next to each archived file.
type Metadata struct {
	DocID                  string            `json:"doc_id"`
	SourceFileID           string            `json:"source_file_id"`
	FileName               string            `json:"file_name"`
	MimeType               string            `json:"mime_type,omitempty"`
	FileSize               int64             `json:"file_size,omitempty"`
	PageCount              int               `json:"page_count,omitempty"`
	DocumentType           string            `json:"document_type"`
	Confidence             float64           `json:"confidence"`
	Reasoning              string            `json:"reasoning,omitempty"`
	PossibleType           string            `json:"possible_type,omitempty"`
	ClassificationDegraded bool              `json:"classification_degraded,omitempty"`
	ExtractionError        string            `json:"extraction_error,omitempty"`
	CanonicalPath          string            `json:"canonical_path"`
	Outcome                string            `json:"outcome"`
	RegisteredAt           time.Time         `json:"registered_at"`
	ProcessedAt            time.Time         `json:"processed_at"`
	Extracted              *document.Payload `json:"extracted,omitempty"`
}

// Finalizer persists metadata and assigns the terminal status.
type Finalizer struct {
	cfg     *config.Config
	logger  *slog.Logger
	objects objectstore.Store
	exec    *stageexec.Executor
	policy  stageexec.Policy
	now     func() time.Time
}

// NewFinalizer constructs the finalize stage handler over the archive
// store.
func NewFinalizer(cfg *config.Config, logger *slog.Logger) (*Finalizer, error) {
	objects, err := objectstore.NewFS(cfg.Paths.ArchiveDir)
	if err != nil {
		return nil, err
	}
	return NewFinalizerWithDependencies(cfg, logger, objects), nil
}

// NewFinalizerWithDependencies allows injecting the object store (used in
// tests).
func NewFinalizerWithDependencies(cfg *config.Config, logger *slog.Logger, objects objectstore.Store) *Finalizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = logging.NewComponentLogger(stageLogger, "finalizer")
	}
	return &Finalizer{
		cfg:     cfg,
		logger:  stageLogger,
		objects: objects,
		exec:    stageexec.NewExecutor(stageLogger),
		policy:  stageexec.PolicyFromConfig(cfg.Retry.Finalize),
		now:     time.Now,
	}
}

// SetLogger installs a run-scoped logger.
func (f *Finalizer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logging.NewComponentLogger(logger, "finalizer")
	}
}

func (f *Finalizer) Prepare(ctx context.Context, doc *registry.Document) error {
	if strings.TrimSpace(doc.CanonicalPath) == "" {
		return services.Wrap(services.ErrValidation, "finalize", "validate inputs", "document has no canonical path; run archiving before finalization", nil)
	}
	if strings.TrimSpace(doc.MetadataPath) == "" {
		doc.MetadataPath = document.MetadataPath(doc.CanonicalPath)
	}
	doc.SetProgress("Finalizing", "Preparing metadata", 0)
	return nil
}

func (f *Finalizer) Execute(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, f.logger)

	effective := document.ParseType(doc.DocumentType)
	payload, err := document.DecodePayload(doc.ExtractedJSON)
	if err != nil {
		// Stored extraction data that no longer parses is treated like a
		// failed extraction rather than a halted run.
		doc.ExtractionError = "stored extraction payload is invalid"
		payload = nil
	}
	outcome := document.DecideOutcome(effective, payload, doc.ExtractionError)
	processedAt := f.now().UTC()

	meta := Metadata{
		DocID:                  doc.DocID,
		SourceFileID:           doc.SourceFileID,
		FileName:               doc.FileName,
		MimeType:               doc.MimeType,
		FileSize:               doc.FileSize,
		PageCount:              doc.PageCount,
		DocumentType:           string(effective),
		Confidence:             doc.Confidence,
		Reasoning:              doc.Reasoning,
		PossibleType:           doc.PossibleType,
		ClassificationDegraded: doc.ClassificationDegraded,
		ExtractionError:        doc.ExtractionError,
		CanonicalPath:          doc.CanonicalPath,
		Outcome:                string(outcome),
		RegisteredAt:           doc.RegisteredAt.UTC(),
		ProcessedAt:            processedAt,
		Extracted:              payload,
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "finalize", "encode metadata", "failed to encode metadata sidecar", err)
	}

	err = f.exec.Do(ctx, "objectstore.put_metadata", f.policy, func(ctx context.Context) error {
		return f.objects.PutBytes(ctx, doc.MetadataPath, encoded)
	})
	if err != nil {
		return services.Wrap(services.ErrExternalService, "finalize", "put metadata",
			"failed to persist metadata sidecar", err)
	}

	doc.ProcessedAt = &processedAt
	switch outcome {
	case document.OutcomeProcessed:
		doc.Status = registry.StatusProcessed
	case document.OutcomeRejected:
		doc.Status = registry.StatusRejected
	case document.OutcomeExtractionFailed:
		doc.Status = registry.StatusExtractionFailed
	}
	f.cleanupStaging(doc, logger)
	doc.SetProgressComplete("Finalizing", "Run decided: "+string(outcome))
	logger.Info("run finalized",
		logging.String("outcome", string(outcome)),
		logging.String("metadata_path", doc.MetadataPath),
	)
	return nil
}

// cleanupStaging removes the staged copy once the archive and metadata are
// both durable. Failures are logged, not fatal; the staging sweeper picks
// up leftovers.
func (f *Finalizer) cleanupStaging(doc *registry.Document, logger *slog.Logger) {
	if doc.StagedFile == "" {
		doc.StagingCleaned = true
		return
	}
	if err := os.Remove(doc.StagedFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove staged file", logging.Error(err), logging.String("staged_file", doc.StagedFile))
		return
	}
	doc.StagedFile = ""
	doc.StagingCleaned = true
}

func (f *Finalizer) HealthCheck(ctx context.Context) stage.Health {
	if err := f.objects.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("finalizer", err.Error())
	}
	return stage.Healthy("finalizer")
}
