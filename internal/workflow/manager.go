package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docket/internal/config"
	"docket/internal/metrics"
	"docket/internal/notifications"
	"docket/internal/registry"
)

// Manager coordinates document processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *registry.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	metrics      *metrics.PipelineMetrics

	heartbeat *HeartbeatMonitor

	mu      sync.RWMutex
	stages  []pipelineStage
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastDoc *registry.Document
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *registry.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: pollInterval,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// SetMetrics installs the pipeline metric set. Without it the manager runs
// unmetered.
func (m *Manager) SetMetrics(pm *metrics.PipelineMetrics) {
	m.metrics = pm
}
