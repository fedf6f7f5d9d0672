// Package stageexec runs stage work with bounded retries and per-operation
// circuit breakers, and provides the one-shot runner used by the CLI to
// execute a single stage with full status transition semantics.
package stageexec
