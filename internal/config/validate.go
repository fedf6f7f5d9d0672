package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports configuration problems that would prevent the pipeline
// from operating. It is called by Load after normalization.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.StagingDir == c.Paths.ArchiveDir {
		problems = append(problems, "paths: staging_dir and archive_dir must differ")
	}
	if c.Classifier.ConfidenceThreshold <= 0 || c.Classifier.ConfidenceThreshold > 1 {
		problems = append(problems, fmt.Sprintf("classifier: confidence_threshold %.2f outside (0,1]", c.Classifier.ConfidenceThreshold))
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow: heartbeat_timeout must exceed heartbeat_interval")
	}
	for name, policy := range map[string]RetryPolicy{
		"register": c.Retry.Register,
		"download": c.Retry.Download,
		"classify": c.Retry.Classify,
		"store":    c.Retry.Store,
		"extract":  c.Retry.Extract,
		"finalize": c.Retry.Finalize,
	} {
		if policy.MaxAttempts < 1 {
			problems = append(problems, fmt.Sprintf("retry.%s: max_attempts must be at least 1", name))
		}
		if policy.MaxDelayMS < policy.MinDelayMS {
			problems = append(problems, fmt.Sprintf("retry.%s: max_delay_ms below min_delay_ms", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
