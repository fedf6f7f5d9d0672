package stageexec

import "context"

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeDegraded
	outcomeFatal
)

// Outcome is the uniform result of one stage capability call: the call
// succeeded, it failed but the stage substitutes a safe default, or it
// failed fatally. Handlers branch on the kind instead of inspecting errors
// ad hoc, so degrade-vs-abort is a data-level decision.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
	err   error
}

// Success wraps a completed capability result.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{kind: outcomeSuccess, value: value}
}

// DegradedDefault wraps a substitute value for a stage that continues after
// failure. The cause is retained for the document's audit fields.
func DegradedDefault[T any](fallback T, cause error) Outcome[T] {
	return Outcome[T]{kind: outcomeDegraded, value: fallback, err: cause}
}

// Fatal wraps a failure the stage cannot absorb.
func Fatal[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeFatal, err: err}
}

func (o Outcome[T]) Success() bool  { return o.kind == outcomeSuccess }
func (o Outcome[T]) Degraded() bool { return o.kind == outcomeDegraded }
func (o Outcome[T]) Fatal() bool    { return o.kind == outcomeFatal }

// Value returns the result for success outcomes and the substituted default
// for degraded ones.
func (o Outcome[T]) Value() T { return o.value }

// Err returns the underlying failure, nil for success outcomes.
func (o Outcome[T]) Err() error { return o.err }

// OrDefault declares the caller's stage degradable: a fatal outcome becomes
// DegradedDefault(fallback) carrying the original error. Success and
// already-degraded outcomes pass through.
func (o Outcome[T]) OrDefault(fallback T) Outcome[T] {
	if o.kind != outcomeFatal {
		return o
	}
	return DegradedDefault(fallback, o.err)
}

// Attempt runs fn under the named operation's breaker and retry policy and
// classifies the result. Exhausted retries come back Fatal; degradable
// stages chain OrDefault to continue with a substitute value.
func Attempt[T any](ctx context.Context, e *Executor, operation string, policy Policy, fn func(context.Context) (T, error)) Outcome[T] {
	value, err := Do(ctx, e, operation, policy, fn)
	if err != nil {
		return Fatal[T](err)
	}
	return Success(value)
}
