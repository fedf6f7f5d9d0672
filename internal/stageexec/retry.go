package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"docket/internal/config"
	"docket/internal/logging"
	"docket/internal/services"
)

// Policy describes the retry budget for one stage's capability calls.
type Policy struct {
	MaxAttempts   int
	BackoffFactor float64
	MinDelay      time.Duration
	MaxDelay      time.Duration
	Jitter        bool
}

// PolicyFromConfig converts a configured retry budget into an executable
// policy.
func PolicyFromConfig(cfg config.RetryPolicy) Policy {
	return Policy{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffFactor: cfg.BackoffFactor,
		MinDelay:      time.Duration(cfg.MinDelayMS) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		Jitter:        cfg.Jitter,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.MinDelay <= 0 {
		p.MinDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	return p
}

// delay returns the backoff before the given retry (attempt is 1-based and
// counts the attempts already made).
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.MinDelay)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffFactor
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	wait := time.Duration(d)
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	if p.Jitter && wait > 0 {
		// Uniform jitter in [wait/2, wait) keeps retrying workers from
		// synchronizing against the same dependency.
		half := wait / 2
		wait = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return wait
}

const (
	breakerFailureRatio     = 0.6
	breakerMinRequests      = 5
	breakerOpenTimeout      = 30 * time.Second
	breakerHalfOpenMaxCalls = 1
)

// Executor retries transient failures with exponential backoff and guards
// each named operation behind a circuit breaker. Validation and
// configuration errors fail immediately and never trip the breaker.
type Executor struct {
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor constructs an Executor logging retry activity to logger.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		logger:   logger,
		sleep:    sleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn under the named operation's breaker with the given retry
// policy.
func (e *Executor) Do(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("stageexec: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	breaker := e.circuitBreaker(op)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.retry(ctx, op, policy, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return services.Wrap(services.ErrExternalService, "stageexec", op,
			"Dependency circuit open; backing off before more attempts", err)
	}
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	policy = policy.normalize()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.Retryable(lastErr) || attempt == policy.MaxAttempts {
			return lastErr
		}

		wait := policy.delay(attempt)
		e.logger.Warn("retrying operation",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", policy.MaxAttempts),
			logging.Duration("backoff", wait),
			logging.Error(lastErr),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (e *Executor) circuitBreaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: breakerHalfOpenMaxCalls,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !services.Retryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit breaker state change",
				logging.String("operation", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// Do runs fn and returns its result, retrying under e's breaker for the
// named operation.
func Do[T any](ctx context.Context, e *Executor, operation string, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, operation, policy, func(ctx context.Context) error {
		value, fnErr := fn(ctx)
		if fnErr != nil {
			return fnErr
		}
		result = value
		return nil
	})
	return result, err
}
