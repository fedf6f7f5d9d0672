package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir  string `toml:"staging_dir"`
	ArchiveDir  string `toml:"archive_dir"`
	LogDir      string `toml:"log_dir"`
	MetricsBind string `toml:"metrics_bind"`
}

// Source contains configuration for the scanner source connector.
type Source struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	RequestTimeout int    `toml:"request_timeout"`
	RescanCron     string `toml:"rescan_cron"`
	PageSize       int    `toml:"page_size"`
}

// LLM contains connection settings for a JSON-completion model endpoint.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Classifier contains configuration for the document classification model.
type Classifier struct {
	LLM
	// ConfidenceThreshold is the minimum classifier confidence required to
	// accept a document type. Results below it are downgraded to unknown.
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	// ExcerptChars bounds how much extracted text is sent for classification.
	ExcerptChars int `toml:"excerpt_chars"`
}

// Extractor contains configuration for the structured extraction model.
// Empty fields fall back to the classifier connection settings.
type Extractor struct {
	LLM
}

// RetryPolicy describes the retry budget for a single pipeline stage.
type RetryPolicy struct {
	MaxAttempts   int     `toml:"max_attempts"`
	BackoffFactor float64 `toml:"backoff_factor"`
	MinDelayMS    int     `toml:"min_delay_ms"`
	MaxDelayMS    int     `toml:"max_delay_ms"`
	Jitter        bool    `toml:"jitter"`
}

// Retry groups the per-stage retry budgets.
type Retry struct {
	Register RetryPolicy `toml:"register"`
	Download RetryPolicy `toml:"download"`
	Classify RetryPolicy `toml:"classify"`
	Store    RetryPolicy `toml:"store"`
	Extract  RetryPolicy `toml:"extract"`
	Finalize RetryPolicy `toml:"finalize"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	MaxActiveRuns      int `toml:"max_active_runs"`
	// FinalizeRetryLimit bounds how many whole-pipeline retries may resume
	// from metadata persistence after the safe point.
	FinalizeRetryLimit int `toml:"finalize_retry_limit"`
	StagingMaxAgeHours int `toml:"staging_max_age_hours"`
	// IdempotencyTTLHours bounds how long a derived idempotency key stays
	// valid before a re-run derives a fresh one.
	IdempotencyTTLHours int `toml:"idempotency_ttl_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Processed      bool   `toml:"processed"`
	Rejected       bool   `toml:"rejected"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docket.
//
// Configuration sections by subsystem:
//   - Paths: staging/archive/log directories and metrics bind address
//   - Source: scanner service connection and rescan schedule
//   - Classifier/Extractor: model endpoints and gating threshold
//   - Retry: per-stage retry budgets
//   - Workflow: daemon polling intervals, timeouts, and concurrency ceiling
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Classifier    Classifier    `toml:"classifier"`
	Extractor     Extractor     `toml:"extractor"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docket/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has defaults applied and paths expanded. The second return value is
// the path that was consulted; the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		def, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		resolved = def
	} else {
		expanded, err := expandPath(resolved)
		if err != nil {
			return nil, "", false, err
		}
		resolved = expanded
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	exists := err == nil
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, resolved, false, fmt.Errorf("read config: %w", err)
		}
		if strings.TrimSpace(path) != "" {
			return nil, resolved, false, fmt.Errorf("config file %s does not exist", resolved)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, resolved, true, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolved, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, exists, err
	}
	return &cfg, resolved, exists, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the staging, archive, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExtractorLLM resolves the extractor connection, falling back to the
// classifier settings for any unset field.
func (c *Config) ExtractorLLM() LLM {
	out := c.Extractor.LLM
	if strings.TrimSpace(out.APIKey) == "" {
		out.APIKey = c.Classifier.APIKey
	}
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = c.Classifier.BaseURL
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = c.Classifier.Model
	}
	if out.TimeoutSeconds <= 0 {
		out.TimeoutSeconds = c.Classifier.TimeoutSeconds
	}
	return out
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}
