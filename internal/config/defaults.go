package config

const (
	defaultStagingDir          = "~/.local/share/docket/staging"
	defaultArchiveDir          = "~/.local/share/docket/archive"
	defaultLogDir              = "~/.local/share/docket/logs"
	defaultMetricsBind         = "127.0.0.1:9417"
	defaultSourceTimeout       = 30
	defaultSourceRescanCron    = "*/5 * * * *"
	defaultSourcePageSize      = 50
	defaultClassifierBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultClassifierModel     = "google/gemini-3-flash-preview"
	defaultClassifierTimeout   = 60
	defaultConfidenceThreshold = 0.8
	defaultExcerptChars        = 6000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:  defaultStagingDir,
			ArchiveDir:  defaultArchiveDir,
			LogDir:      defaultLogDir,
			MetricsBind: defaultMetricsBind,
		},
		Source: Source{
			RequestTimeout: defaultSourceTimeout,
			RescanCron:     defaultSourceRescanCron,
			PageSize:       defaultSourcePageSize,
		},
		Classifier: Classifier{
			LLM: LLM{
				BaseURL:        defaultClassifierBaseURL,
				Model:          defaultClassifierModel,
				TimeoutSeconds: defaultClassifierTimeout,
			},
			ConfidenceThreshold: defaultConfidenceThreshold,
			ExcerptChars:        defaultExcerptChars,
		},
		Retry: Retry{
			Register: RetryPolicy{MaxAttempts: 3, BackoffFactor: 1, MinDelayMS: 500, MaxDelayMS: 500},
			Download: RetryPolicy{MaxAttempts: 5, BackoffFactor: 2, MinDelayMS: 1000, MaxDelayMS: 30000, Jitter: true},
			Classify: RetryPolicy{MaxAttempts: 8, BackoffFactor: 2, MinDelayMS: 1000, MaxDelayMS: 60000, Jitter: true},
			Store:    RetryPolicy{MaxAttempts: 5, BackoffFactor: 2, MinDelayMS: 500, MaxDelayMS: 15000, Jitter: true},
			Extract:  RetryPolicy{MaxAttempts: 8, BackoffFactor: 2, MinDelayMS: 1000, MaxDelayMS: 60000, Jitter: true},
			Finalize: RetryPolicy{MaxAttempts: 3, BackoffFactor: 1, MinDelayMS: 500, MaxDelayMS: 500},
		},
		Workflow: Workflow{
			QueuePollInterval:   5,
			ErrorRetryInterval:  10,
			HeartbeatInterval:   15,
			HeartbeatTimeout:    120,
			MaxActiveRuns:       4,
			FinalizeRetryLimit:  5,
			StagingMaxAgeHours:  48,
			IdempotencyTTLHours: 24,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Processed:      true,
			Rejected:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
