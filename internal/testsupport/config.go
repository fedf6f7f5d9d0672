package testsupport

import (
	"path/filepath"
	"testing"

	"docket/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MetricsBind = "127.0.0.1:0"
	cfgVal.Source.BaseURL = "http://127.0.0.1:0"
	cfgVal.Source.APIToken = "test"
	cfgVal.Classifier.APIKey = "test"
	cfgVal.Classifier.BaseURL = "http://127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSourceURL points the source connector at the provided base URL.
func WithSourceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.BaseURL = url
	}
}

// WithLLMURL points the classifier model client at the provided base URL.
func WithLLMURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Classifier.BaseURL = url
	}
}

// WithMaxActiveRuns overrides the worker concurrency on the test config.
func WithMaxActiveRuns(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxActiveRuns = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
