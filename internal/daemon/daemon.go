// Package daemon assembles the pipeline services and enforces
// single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"docket/internal/config"
	"docket/internal/intake"
	"docket/internal/logging"
	"docket/internal/metrics"
	"docket/internal/registry"
	"docket/internal/staging"
	"docket/internal/workflow"
)

// Daemon owns the long-running services: the workflow manager, scheduled
// intake scans, the staging sweeper, and the metrics endpoint.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *registry.Store
	workflow  *workflow.Manager
	scheduler *intake.Scheduler
	sweeper   *staging.Sweeper
	metricsPM *metrics.PipelineMetrics
	metrics   *metrics.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	Workflow       workflow.StatusSummary
	RegistryDBPath string
	LockFilePath   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *registry.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	pm := metrics.NewPipelineMetrics()
	wf.SetMetrics(pm)

	scanner := intake.NewScanner(cfg, store, logger)
	var scheduler *intake.Scheduler
	if sched, err := intake.ParseSchedule(cfg.Source.RescanCron); err == nil {
		scheduler = intake.NewScheduler(scanner, sched, logger)
	} else {
		logger.Warn("scheduled intake disabled",
			logging.String("rescan_cron", cfg.Source.RescanCron),
			logging.Error(err),
		)
	}

	sweeper := staging.NewSweeper(
		cfg.Paths.StagingDir,
		time.Duration(cfg.Workflow.StagingMaxAgeHours)*time.Hour,
		time.Hour,
		store,
		logger,
	)

	lockPath := filepath.Join(cfg.Paths.LogDir, "docketd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		workflow:  wf,
		scheduler: scheduler,
		sweeper:   sweeper,
		metricsPM: pm,
		metrics:   metrics.NewServer(cfg.Paths.MetricsBind, pm, logger),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, clears interrupted runs, and launches the
// background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docket daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Runs interrupted by a previous crash sit in a processing status
	// nobody owns. Rewind them to their stage start before workers spin up.
	if reset, err := d.store.ResetStuckProcessing(d.ctx); err != nil {
		d.logger.Warn("failed to reset interrupted runs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset interrupted runs", logging.Int64("count", reset))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.scheduler != nil {
		d.scheduler.Start(d.ctx)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweeper.Run(d.ctx)
	}()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reflectQueueDepth(d.ctx)
	}()
	if err := d.metrics.Start(); err != nil {
		d.logger.Warn("metrics endpoint unavailable", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("docket daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	d.workflow.Stop()
	d.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.metrics.Stop(shutdownCtx); err != nil {
		d.logger.Warn("metrics shutdown failed", logging.Error(err))
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("docket daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TriggerScan requests an immediate intake scan.
func (d *Daemon) TriggerScan() bool {
	if d.scheduler == nil {
		return false
	}
	d.scheduler.TriggerScan()
	return true
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:        d.running.Load(),
		Workflow:       d.workflow.Status(ctx),
		RegistryDBPath: d.store.Path(),
		LockFilePath:   d.lockPath,
	}
}

// reflectQueueDepth periodically mirrors registry counts onto the queue
// depth gauge.
func (d *Daemon) reflectQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := d.store.Stats(ctx)
			if err != nil {
				continue
			}
			d.metricsPM.UpdateQueueDepth(stats)
		}
	}
}
