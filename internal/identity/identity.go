// Package identity derives the stable identifiers the pipeline reuses across
// runs: the document ID and the per-run idempotency key. Both are computed
// from the source file identifier so duplicate triggers for the same file
// converge on the same values.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// namespace scopes v5 UUIDs so docket IDs never collide with other systems
// deriving UUIDs from the same source identifiers.
var namespace = uuid.MustParse("a6c1f3de-9b7a-4ce0-8f40-5d2c3a815f27")

// DocID returns the stable document identifier for a source file. The same
// source file always yields the same DocID, which is what makes registration
// an upsert rather than an insert.
func DocID(sourceFileID string) (string, error) {
	sourceFileID = strings.TrimSpace(sourceFileID)
	if sourceFileID == "" {
		return "", errors.New("source file id required")
	}
	return uuid.NewSHA1(namespace, []byte("doc:"+sourceFileID)).String(), nil
}

// Key is a deduplication token passed to every capability call of one
// pipeline run. Collaborators treat it as an upsert-by-key handle, so
// re-running a stage whose side effect already committed is a no-op.
type Key struct {
	Value     string
	ExpiresAt time.Time
}

// NewKey derives an idempotency key for a run over sourceFileID. The key is
// random per run but persisted on the registry record; Resolve prefers a
// stored unexpired key so crash-resumed runs keep deduplicating against the
// original side effects.
func NewKey(sourceFileID string, ttl time.Duration, now time.Time) (Key, error) {
	sourceFileID = strings.TrimSpace(sourceFileID)
	if sourceFileID == "" {
		return Key{}, errors.New("source file id required")
	}
	if ttl <= 0 {
		return Key{}, errors.New("ttl must be positive")
	}
	return Key{
		Value:     uuid.NewString(),
		ExpiresAt: now.UTC().Add(ttl),
	}, nil
}

// Resolve returns the stored key when it is still valid, otherwise derives a
// fresh one.
func Resolve(stored Key, sourceFileID string, ttl time.Duration, now time.Time) (Key, bool, error) {
	if stored.Value != "" && now.UTC().Before(stored.ExpiresAt) {
		return stored, false, nil
	}
	fresh, err := NewKey(sourceFileID, ttl, now)
	if err != nil {
		return Key{}, false, err
	}
	return fresh, true, nil
}
