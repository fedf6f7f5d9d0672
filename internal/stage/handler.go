package stage

import (
	"context"
	"log/slog"

	"docket/internal/registry"
)

// Handler describes the contract the workflow manager needs from each stage.
// Prepare validates inputs and primes the document before the heavy work in
// Execute; both receive the claimed document and persist their results by
// mutating it.
type Handler interface {
	Prepare(context.Context, *registry.Document) error
	Execute(context.Context, *registry.Document) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets stage implementations receive a run-scoped logger before
// execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
