// Package preflight validates the runtime environment before the daemon
// starts accepting work: directory access, free disk space, and the
// external services every run depends on.
package preflight

import (
	"context"
	"strings"

	"docket/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir),
		CheckSource(ctx, cfg.Source),
		CheckModel(ctx, "Classifier model", cfg.Classifier.LLM),
	}
	if extractorUsesDistinctModel(cfg) {
		results = append(results, CheckModel(ctx, "Extractor model", cfg.ExtractorLLM()))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failed lists the names of failing checks.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if !r.Passed {
			names = append(names, r.Name)
		}
	}
	return names
}

// extractorUsesDistinctModel returns true when the extractor resolves to a
// different endpoint or key than the classifier. When identical, the
// classifier check already covers it.
func extractorUsesDistinctModel(cfg *config.Config) bool {
	classifier := cfg.Classifier.LLM
	extractor := cfg.ExtractorLLM()
	return strings.TrimSpace(extractor.APIKey) != strings.TrimSpace(classifier.APIKey) ||
		strings.TrimSpace(extractor.BaseURL) != strings.TrimSpace(classifier.BaseURL)
}
