// Package staging maintains the staging directory: downloaded files whose
// runs finished or went stale are swept so disk usage stays bounded.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docket/internal/logging"
	"docket/internal/registry"
)

// CleanResult contains the outcome of a staging sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staging files older than maxAge that no active run
// still references. Active paths are kept regardless of age; a slow
// pipeline must never lose its staged input.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, active map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result
		}
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		if _, inUse := active[path]; inUse {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale staging file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed stale staging file",
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}

// ActivePaths collects the staged file paths of every document whose run is
// not yet decided.
func ActivePaths(ctx context.Context, store *registry.Store) (map[string]struct{}, error) {
	docs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for _, doc := range docs {
		if doc.StagedFile == "" {
			continue
		}
		if doc.IsFinal() {
			continue
		}
		active[doc.StagedFile] = struct{}{}
	}
	return active, nil
}

// Sweeper periodically sweeps the staging directory.
type Sweeper struct {
	stagingDir string
	maxAge     time.Duration
	interval   time.Duration
	store      *registry.Store
	logger     *slog.Logger
}

// NewSweeper constructs a sweeper. interval controls how often the sweep
// runs; maxAge how old an unreferenced file must be before removal.
func NewSweeper(stagingDir string, maxAge, interval time.Duration, store *registry.Store, logger *slog.Logger) *Sweeper {
	sweepLogger := logger
	if sweepLogger != nil {
		sweepLogger = logging.NewComponentLogger(sweepLogger, "staging-sweeper")
	}
	return &Sweeper{
		stagingDir: stagingDir,
		maxAge:     maxAge,
		interval:   interval,
		store:      store,
		logger:     sweepLogger,
	}
}

// Run sweeps on the configured interval until the context is canceled. One
// sweep runs immediately at startup.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	active, err := ActivePaths(ctx, s.store)
	if err != nil {
		if ctx.Err() == nil && s.logger != nil {
			s.logger.Warn("staging sweep skipped, registry unavailable", logging.Error(err))
		}
		return
	}
	result := CleanStale(ctx, s.stagingDir, s.maxAge, active, s.logger)
	if len(result.Removed) > 0 && s.logger != nil {
		s.logger.Info("staging sweep complete",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}
