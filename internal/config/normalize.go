package config

import "strings"

// normalize expands paths and backfills zero values with repository defaults
// so downstream code never has to guard against empty settings.
func (c *Config) normalize() error {
	def := Default()

	var err error
	if c.Paths.StagingDir, err = expandPath(orDefault(c.Paths.StagingDir, def.Paths.StagingDir)); err != nil {
		return err
	}
	if c.Paths.ArchiveDir, err = expandPath(orDefault(c.Paths.ArchiveDir, def.Paths.ArchiveDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(orDefault(c.Paths.LogDir, def.Paths.LogDir)); err != nil {
		return err
	}
	c.Paths.MetricsBind = orDefault(c.Paths.MetricsBind, def.Paths.MetricsBind)

	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = def.Source.RequestTimeout
	}
	c.Source.RescanCron = orDefault(c.Source.RescanCron, def.Source.RescanCron)
	if c.Source.PageSize <= 0 {
		c.Source.PageSize = def.Source.PageSize
	}

	c.Classifier.BaseURL = orDefault(c.Classifier.BaseURL, def.Classifier.BaseURL)
	c.Classifier.Model = orDefault(c.Classifier.Model, def.Classifier.Model)
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = def.Classifier.TimeoutSeconds
	}
	if c.Classifier.ConfidenceThreshold <= 0 {
		c.Classifier.ConfidenceThreshold = def.Classifier.ConfidenceThreshold
	}
	if c.Classifier.ExcerptChars <= 0 {
		c.Classifier.ExcerptChars = def.Classifier.ExcerptChars
	}

	normalizePolicy(&c.Retry.Register, def.Retry.Register)
	normalizePolicy(&c.Retry.Download, def.Retry.Download)
	normalizePolicy(&c.Retry.Classify, def.Retry.Classify)
	normalizePolicy(&c.Retry.Store, def.Retry.Store)
	normalizePolicy(&c.Retry.Extract, def.Retry.Extract)
	normalizePolicy(&c.Retry.Finalize, def.Retry.Finalize)

	if c.Workflow.QueuePollInterval < 0 {
		c.Workflow.QueuePollInterval = def.Workflow.QueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = def.Workflow.ErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = def.Workflow.HeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = def.Workflow.HeartbeatTimeout
	}
	if c.Workflow.MaxActiveRuns <= 0 {
		c.Workflow.MaxActiveRuns = def.Workflow.MaxActiveRuns
	}
	if c.Workflow.FinalizeRetryLimit <= 0 {
		c.Workflow.FinalizeRetryLimit = def.Workflow.FinalizeRetryLimit
	}
	if c.Workflow.StagingMaxAgeHours <= 0 {
		c.Workflow.StagingMaxAgeHours = def.Workflow.StagingMaxAgeHours
	}
	if c.Workflow.IdempotencyTTLHours <= 0 {
		c.Workflow.IdempotencyTTLHours = def.Workflow.IdempotencyTTLHours
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = def.Notifications.RequestTimeout
	}

	c.Logging.Format = strings.ToLower(orDefault(c.Logging.Format, def.Logging.Format))
	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, def.Logging.Level))

	return nil
}

func normalizePolicy(p *RetryPolicy, def RetryPolicy) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = def.BackoffFactor
	}
	if p.MinDelayMS <= 0 {
		p.MinDelayMS = def.MinDelayMS
	}
	if p.MaxDelayMS < p.MinDelayMS {
		p.MaxDelayMS = def.MaxDelayMS
	}
	if p.MaxDelayMS < p.MinDelayMS {
		p.MaxDelayMS = p.MinDelayMS
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
