// Package downloading implements the first pipeline stage: fetching a
// scanned file from the source service into the local staging area.
package downloading

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docket/internal/config"
	"docket/internal/identity"
	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/services/source"
	"docket/internal/stage"
	"docket/internal/stageexec"
)

// Fetcher is the slice of the source connector the downloader needs.
type Fetcher interface {
	Fetch(ctx context.Context, fileID, idempotencyKey string) (io.ReadCloser, source.FileMeta, error)
	HealthCheck(ctx context.Context) error
}

// Downloader fetches source files into staging. Re-executing the stage for
// a file that already landed is a no-op.
type Downloader struct {
	cfg    *config.Config
	store  *registry.Store
	logger *slog.Logger
	source Fetcher
	exec   *stageexec.Executor
	policy stageexec.Policy
}

// NewDownloader constructs the download stage handler with the configured
// source connector.
func NewDownloader(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Downloader {
	return NewDownloaderWithDependencies(cfg, store, logger, source.NewClient(cfg.Source))
}

// NewDownloaderWithDependencies allows injecting the source connector (used
// in tests).
func NewDownloaderWithDependencies(cfg *config.Config, store *registry.Store, logger *slog.Logger, fetcher Fetcher) *Downloader {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = logging.NewComponentLogger(stageLogger, "downloader")
	}
	return &Downloader{
		cfg:    cfg,
		store:  store,
		logger: stageLogger,
		source: fetcher,
		exec:   stageexec.NewExecutor(stageLogger),
		policy: stageexec.PolicyFromConfig(cfg.Retry.Download),
	}
}

// SetLogger installs a run-scoped logger.
func (d *Downloader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logging.NewComponentLogger(logger, "downloader")
	}
}

func (d *Downloader) Prepare(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, d.logger)
	if strings.TrimSpace(doc.SourceFileID) == "" {
		return services.Wrap(services.ErrValidation, "download", "validate inputs", "document has no source file id", nil)
	}
	if strings.TrimSpace(doc.DocID) == "" {
		return services.Wrap(services.ErrValidation, "download", "validate inputs", "document has no doc id", nil)
	}
	if err := os.MkdirAll(d.cfg.Paths.StagingDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "prepare staging", "staging directory not writable", err)
	}

	stored := identity.Key{Value: doc.IdempotencyKey}
	if doc.IdempotencyExpiresAt != nil {
		stored.ExpiresAt = *doc.IdempotencyExpiresAt
	}
	ttl := time.Duration(d.cfg.Workflow.IdempotencyTTLHours) * time.Hour
	key, rotated, err := identity.Resolve(stored, doc.SourceFileID, ttl, time.Now())
	if err != nil {
		return services.Wrap(services.ErrValidation, "download", "resolve idempotency key", "cannot derive idempotency key", err)
	}
	doc.IdempotencyKey = key.Value
	expires := key.ExpiresAt
	doc.IdempotencyExpiresAt = &expires
	if rotated {
		logger.Debug("derived fresh idempotency key", logging.String("expires_at", expires.Format(time.RFC3339)))
	}

	doc.SetProgress("Downloading", "Preparing download", 0)
	return nil
}

func (d *Downloader) Execute(ctx context.Context, doc *registry.Document) error {
	logger := logging.WithContext(ctx, d.logger)
	dest := d.stagingPath(doc)

	if doc.StagedFile != "" {
		if info, err := os.Stat(doc.StagedFile); err == nil && info.Size() > 0 {
			logger.Info("staged file already present, skipping download",
				logging.String("staged_file", doc.StagedFile))
			doc.SetProgressComplete("Downloading", "Already downloaded")
			return nil
		}
	}

	meta, err := stageexec.Do(ctx, d.exec, "source.fetch", d.policy, func(ctx context.Context) (source.FileMeta, error) {
		return d.fetchToStaging(ctx, doc, dest)
	})
	if err != nil {
		return services.Wrap(services.ErrExternalService, "download", "fetch",
			fmt.Sprintf("failed to download %s from source", doc.SourceFileID), err)
	}

	doc.StagedFile = dest
	if info, statErr := os.Stat(dest); statErr == nil {
		doc.FileSize = info.Size()
	}
	if doc.MimeType == "" && meta.MimeType != "" {
		doc.MimeType = meta.MimeType
	}
	doc.SetProgressComplete("Downloading", "Download complete")
	logger.Info("download complete",
		logging.String("staged_file", dest),
		logging.Int64("file_size", doc.FileSize),
	)
	return nil
}

// fetchToStaging streams the source body to a temp file and renames it into
// place so interrupted downloads never leave a partial staged file.
func (d *Downloader) fetchToStaging(ctx context.Context, doc *registry.Document, dest string) (source.FileMeta, error) {
	body, meta, err := d.source.Fetch(ctx, doc.SourceFileID, doc.IdempotencyKey)
	if err != nil {
		return source.FileMeta{}, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return source.FileMeta{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return source.FileMeta{}, fmt.Errorf("write staged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return source.FileMeta{}, fmt.Errorf("close staged file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return source.FileMeta{}, fmt.Errorf("finalize staged file: %w", err)
	}
	return meta, nil
}

func (d *Downloader) stagingPath(doc *registry.Document) string {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext == "" {
		ext = ".pdf"
	}
	return filepath.Join(d.cfg.Paths.StagingDir, doc.DocID+ext)
}

func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	if err := d.source.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("downloader", err.Error())
	}
	return stage.Healthy("downloader")
}
