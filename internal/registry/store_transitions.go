package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim describes a conditional status transition used to lease a document
// to a worker. From lists the resting statuses a stage starts on and To is
// the in-flight status the winner persists.
type Claim struct {
	From []Status
	To   Status
	// UnprocessedOnly restricts candidates to rows without a processed_at
	// timestamp. The finalize stage relies on this because one of its
	// resting outcomes shares a status with one of its start states.
	UnprocessedOnly bool
	// MaxFinalizeAttempts, when positive, skips rows whose finalize_attempts
	// counter has reached the limit.
	MaxFinalizeAttempts int
}

const claimAttempts = 3

// ClaimNext leases the oldest eligible document by flipping its status with
// a conditional update. Under concurrent workers only one update wins; the
// losers observe zero affected rows and look for the next candidate.
func (s *Store) ClaimNext(ctx context.Context, claim Claim) (*Document, error) {
	if len(claim.From) == 0 {
		return nil, errors.New("claim requires at least one start status")
	}
	if !IsProcessingStatus(claim.To) {
		return nil, fmt.Errorf("claim target %q is not a processing status", claim.To)
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		candidate, err := s.nextClaimCandidate(ctx, claim)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE documents SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
			claim.To,
			now,
			now,
			candidate.ID,
			candidate.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("claim document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			return s.GetByID(ctx, candidate.ID)
		}
	}
	return nil, nil
}

func (s *Store) nextClaimCandidate(ctx context.Context, claim Claim) (*Document, error) {
	placeholders := makePlaceholders(len(claim.From))
	args := make([]any, 0, len(claim.From)+1)
	for _, status := range claim.From {
		args = append(args, status)
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE status IN (` + placeholders + `)`
	if claim.UnprocessedOnly {
		query += ` AND processed_at IS NULL`
	}
	if claim.MaxFinalizeAttempts > 0 {
		query += ` AND finalize_attempts < ?`
		args = append(args, claim.MaxFinalizeAttempts)
	}
	query += ` ORDER BY registered_at LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight
// document.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE documents SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// rollbackCase maps each in-flight status back to the resting status its
// stage starts on. Storing and saving_metadata fan back out to the branch
// they were claimed from using fields persisted before the claim.
const rollbackCase = `CASE status
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN CASE WHEN classification_degraded = 1 THEN ? ELSE ? END
            WHEN ? THEN ?
            WHEN ? THEN CASE WHEN extraction_error IS NOT NULL AND extraction_error != '' THEN ? ELSE ? END
            ELSE status
        END`

func rollbackArgs() []any {
	return []any{
		StatusDownloading, StatusNew,
		StatusClassifying, StatusDownloaded,
		StatusStoring, StatusClassificationFailed, StatusClassified,
		StatusExtracting, StatusStored,
		StatusSavingMetadata, StatusExtractionFailed, StatusExtracted,
	}
}

// ResetStuckProcessing resets documents in processing states back to the
// start of their current stage. Called once at daemon startup before any
// worker runs.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	args := rollbackArgs()
	args = append(args,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDownloading,
		StatusClassifying,
		StatusStoring,
		StatusExtracting,
		StatusSavingMetadata,
	)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents
         SET status = `+rollbackCase+`,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck documents: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing returns documents stuck in processing back to the
// start of their current stage when heartbeats expire.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	args := rollbackArgs()
	args = append(args,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDownloading,
		StatusClassifying,
		StatusStoring,
		StatusExtracting,
		StatusSavingMetadata,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents
        SET status = `+rollbackCase+`,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?, ?, ?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale documents: %w", err)
	}
	return res.RowsAffected()
}

// retryCase maps halted statuses back onto the resting status their stage
// starts on so the workflow picks them up again.
const retryCase = `CASE status
            WHEN ? THEN ?
            WHEN ? THEN CASE WHEN classification_degraded = 1 THEN ? ELSE ? END
            WHEN ? THEN CASE WHEN extraction_error IS NOT NULL AND extraction_error != '' THEN ? ELSE ? END
            ELSE status
        END`

func retryArgs() []any {
	return []any{
		StatusDownloadFailed, StatusNew,
		StatusStoreFailed, StatusClassificationFailed, StatusClassified,
		StatusMetadataStorageFailed, StatusExtractionFailed, StatusExtracted,
	}
}

// RetryHalted moves halted documents back to the start of the stage that
// failed. Metadata persistence retries also reset the attempt counter.
func (s *Store) RetryHalted(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		args := retryArgs()
		args = append(args,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusDownloadFailed,
			StatusStoreFailed,
			StatusMetadataStorageFailed,
		)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE documents
            SET status = `+retryCase+`,
                progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, finalize_attempts = 0, updated_at = ?
            WHERE status IN (?, ?, ?)`,
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("retry halted documents: %w", err)
		}
		return res.RowsAffected()
	}

	args := retryArgs()
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args,
		StatusDownloadFailed,
		StatusStoreFailed,
		StatusMetadataStorageFailed,
	)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := makePlaceholders(len(ids))
	query := `UPDATE documents
        SET status = ` + retryCase + `,
            progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, finalize_attempts = 0, updated_at = ?
        WHERE status IN (?, ?, ?) AND id IN (` + placeholders + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected documents: %w", err)
	}
	return res.RowsAffected()
}
