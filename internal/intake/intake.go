// Package intake feeds the registry from the scanner service. A scan lists
// every file the source currently reports and registers the ones the
// registry has not seen; registration is an upsert, so overlapping scans
// and restarts never create duplicates.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docket/internal/config"
	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/services/source"
	"docket/internal/stageexec"
	"docket/internal/workflow"
)

// Lister is the slice of the source connector the intake needs.
type Lister interface {
	List(ctx context.Context) ([]source.SourceFile, error)
}

// Result tallies one scan pass.
type Result struct {
	Listed     int
	Registered int
	Known      int
	Skipped    int
}

// Scanner registers newly scanned source files.
type Scanner struct {
	cfg    *config.Config
	store  *registry.Store
	logger *slog.Logger
	source Lister
	exec   *stageexec.Executor
	policy stageexec.Policy
}

// NewScanner constructs the intake scanner with the configured source
// connector.
func NewScanner(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Scanner {
	return NewScannerWithDependencies(cfg, store, logger, source.NewClient(cfg.Source))
}

// NewScannerWithDependencies allows injecting the source connector (used in
// tests).
func NewScannerWithDependencies(cfg *config.Config, store *registry.Store, logger *slog.Logger, lister Lister) *Scanner {
	intakeLogger := logger
	if intakeLogger != nil {
		intakeLogger = logging.NewComponentLogger(intakeLogger, "intake")
	}
	return &Scanner{
		cfg:    cfg,
		store:  store,
		logger: intakeLogger,
		source: lister,
		exec:   stageexec.NewExecutor(intakeLogger),
		policy: stageexec.PolicyFromConfig(cfg.Retry.Register),
	}
}

// Scan lists the source and registers every file not yet known. Individual
// registration failures are logged and skipped; the scan only fails when
// the listing itself does.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)

	files, err := s.source.List(ctx)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalService, "intake", "list", "source listing failed", err)
	}
	result := Result{Listed: len(files)}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		created, err := s.registerOne(ctx, file)
		if err != nil {
			logger.Warn("failed to register source file",
				logging.String("source_file_id", file.ID),
				logging.Error(err),
			)
			result.Skipped++
			continue
		}
		if created {
			result.Registered++
			logger.Info("registered new document",
				logging.String("source_file_id", file.ID),
				logging.String("file_name", file.FileName),
			)
		} else {
			result.Known++
		}
	}
	logger.Info("intake scan complete",
		logging.Int("listed", result.Listed),
		logging.Int("registered", result.Registered),
		logging.Int("known", result.Known),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Scanner) registerOne(ctx context.Context, file source.SourceFile) (bool, error) {
	if strings.TrimSpace(file.ID) == "" {
		return false, services.Wrap(services.ErrValidation, "intake", "register", "source file has no id", nil)
	}
	input, err := workflow.Input{
		SourceFileID: file.ID,
		FileName:     file.FileName,
		MimeType:     file.MimeType,
		CreatedAt:    file.CreatedAt,
		FileSize:     file.Size,
	}.Record()
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "intake", "register", "cannot derive doc id", err)
	}
	return stageexec.Do(ctx, s.exec, "registry.register", s.policy, func(ctx context.Context) (bool, error) {
		_, created, err := s.store.Register(ctx, input)
		return created, err
	})
}

// Summary renders a scan result for logs and notifications.
func (r Result) Summary() string {
	return fmt.Sprintf("%d listed, %d new, %d known, %d skipped",
		r.Listed, r.Registered, r.Known, r.Skipped)
}

// Scheduler runs periodic scans on a cron schedule.
type Scheduler struct {
	scanner  *Scanner
	logger   *slog.Logger
	schedule Schedule
	wake     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// Schedule yields the next activation after a given time. cron.Schedule
// satisfies it.
type Schedule interface {
	Next(time.Time) time.Time
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	parser := newCronParser()
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NewScheduler wires a scanner to a parsed schedule.
func NewScheduler(scanner *Scanner, schedule Schedule, logger *slog.Logger) *Scheduler {
	schedLogger := logger
	if schedLogger != nil {
		schedLogger = logging.NewComponentLogger(schedLogger, "intake-scheduler")
	}
	return &Scheduler{
		scanner:  scanner,
		logger:   schedLogger,
		schedule: schedule,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop. An immediate first scan primes the
// registry at daemon startup.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(loopCtx)
}

// Stop halts the scheduler and waits for an in-flight scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// TriggerScan requests an out-of-schedule scan. It never blocks; a pending
// trigger coalesces with the next one.
func (s *Scheduler) TriggerScan() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runScan(ctx)
	for {
		now := time.Now()
		next := s.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))
		s.logger.Debug("next intake scan scheduled",
			logging.String("at", next.Format(time.RFC3339)))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
		s.runScan(ctx)
	}
}

func (s *Scheduler) runScan(ctx context.Context) {
	result, err := s.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("intake scan failed", logging.Error(err))
		}
		return
	}
	s.logger.Info("scheduled intake scan complete", logging.String("summary", result.Summary()))
}
