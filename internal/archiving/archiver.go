// Package archiving implements the store stage: copying the staged file to
// its canonical archive location. Completing this stage is the pipeline's
// safe point; everything after it may fail and resume without re-running
// the stages before it.
package archiving

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/objectstore"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/stage"
	"docket/internal/stageexec"
)

// Archiver copies staged files into the archive under their canonical path.
type Archiver struct {
	cfg     *config.Config
	logger  *slog.Logger
	objects objectstore.Store
	exec    *stageexec.Executor
	policy  stageexec.Policy
}

// NewArchiver constructs the store stage handler over a filesystem archive
// rooted at the configured archive directory.
func NewArchiver(cfg *config.Config, logger *slog.Logger) (*Archiver, error) {
	store, err := objectstore.NewFS(cfg.Paths.ArchiveDir)
	if err != nil {
		return nil, err
	}
	return NewArchiverWithDependencies(cfg, logger, store), nil
}

// NewArchiverWithDependencies allows injecting the object store (used in
// tests).
func NewArchiverWithDependencies(cfg *config.Config, logger *slog.Logger, objects objectstore.Store) *Archiver {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = logging.NewComponentLogger(stageLogger, "archiver")
	}
	return &Archiver{
		cfg:     cfg,
		logger:  stageLogger,
		objects: objects,
		exec:    stageexec.NewExecutor(stageLogger),
		policy:  stageexec.PolicyFromConfig(cfg.Retry.Store),
	}
}

// SetLogger installs a run-scoped logger.
func (a *Archiver) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logging.NewComponentLogger(logger, "archiver")
	}
}

func (a *Archiver) Prepare(ctx context.Context, doc *registry.Document) error {
	if doc.CanonicalPath == "" {
		docType := document.ParseType(doc.DocumentType)
		doc.CanonicalPath = document.CanonicalPath(docType, doc.SourceCreatedAt, doc.DocID, doc.FileName)
		doc.MetadataPath = document.MetadataPath(doc.CanonicalPath)
	}

	if !a.stagedFileReady(doc) {
		// A crash between the archive write and the status commit leaves
		// the staged copy gone but the object already durable; that run
		// may resume without a staged file.
		archived, err := a.objects.Exists(ctx, doc.CanonicalPath)
		if err != nil {
			return services.Wrap(services.ErrExternalService, "store", "validate inputs", "failed to check archive for existing copy", err)
		}
		if !archived {
			return services.Wrap(services.ErrValidation, "store", "validate inputs", "no staged file present; run download before archiving", nil)
		}
	}

	doc.SetProgress("Storing", "Preparing archive write", 0)
	return nil
}

func (a *Archiver) stagedFileReady(doc *registry.Document) bool {
	if strings.TrimSpace(doc.StagedFile) == "" {
		return false
	}
	_, err := os.Stat(doc.StagedFile)
	return err == nil
}

func (a *Archiver) Execute(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, a.logger)

	if !a.stagedFileReady(doc) {
		// Validated by Prepare: the canonical object is already durable.
		doc.ExternalRef = doc.CanonicalPath
		a.cleanupStaging(doc, logger)
		doc.SetProgressComplete("Storing", "Archive copy already present")
		logger.Info("archive copy already present", logging.String("canonical_path", doc.CanonicalPath))
		return nil
	}

	err := a.exec.Do(ctx, "objectstore.put", a.policy, func(ctx context.Context) error {
		return a.objects.Put(ctx, doc.CanonicalPath, doc.StagedFile)
	})
	if err != nil {
		return services.Wrap(services.ErrExternalService, "store", "put",
			"failed to write document to archive", err)
	}

	doc.ExternalRef = doc.CanonicalPath
	a.cleanupStaging(doc, logger)
	doc.SetProgressComplete("Storing", "Archived to "+doc.CanonicalPath)
	logger.Info("document archived",
		logging.String("canonical_path", doc.CanonicalPath),
		logging.String("document_type", doc.DocumentType),
	)
	return nil
}

// cleanupStaging removes the staged copy once the canonical write committed.
// The archive is authoritative from here on; extraction restores a working
// copy from it when needed.
func (a *Archiver) cleanupStaging(doc *registry.Document, logger *slog.Logger) {
	if doc.StagedFile == "" {
		doc.StagingCleaned = true
		return
	}
	if err := os.Remove(doc.StagedFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove staged file",
			logging.Error(err), logging.String("staged_file", doc.StagedFile))
		return
	}
	doc.StagedFile = ""
	doc.StagingCleaned = true
}

func (a *Archiver) HealthCheck(ctx context.Context) stage.Health {
	if err := a.objects.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("archiver", err.Error())
	}
	return stage.Healthy("archiver")
}
