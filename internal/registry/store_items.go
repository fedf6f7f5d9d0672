package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewDocument carries the source metadata needed to register a document.
type NewDocument struct {
	DocID           string
	SourceFileID    string
	FileName        string
	MimeType        string
	SourceCreatedAt time.Time
	FileSize        int64
}

// Register inserts a document in the new status, or returns the existing row
// when the source file was registered before. The source_file_id unique
// constraint makes concurrent registration of the same file converge on one
// row; created reports whether this call inserted it.
func (s *Store) Register(ctx context.Context, doc NewDocument) (*Document, bool, error) {
	if doc.DocID == "" || doc.SourceFileID == "" {
		return nil, false, errors.New("doc id and source file id required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO documents (
            doc_id, source_file_id, file_name, mime_type, source_created_at,
            status, file_size, registered_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source_file_id) DO NOTHING`,
		doc.DocID,
		doc.SourceFileID,
		nullableString(doc.FileName),
		nullableString(doc.MimeType),
		nullableTimeValue(doc.SourceCreatedAt),
		StatusNew,
		doc.FileSize,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("register document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	existing, err := s.FindBySourceFileID(ctx, doc.SourceFileID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("document %s missing after register", doc.SourceFileID)
	}
	return existing, affected > 0, nil
}

// GetByID fetches a document by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByDocID fetches a document by its stable identifier.
func (s *Store) GetByDocID(ctx context.Context, docID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, docID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document by doc id: %w", err)
	}
	return doc, nil
}

// FindBySourceFileID returns the document registered for a source file.
func (s *Store) FindBySourceFileID(ctx context.Context, sourceFileID string) (*Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_file_id = ? LIMIT 1`,
		sourceFileID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source file id: %w", err)
	}
	return doc, nil
}

// Update persists changes to an existing document.
func (s *Store) Update(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	doc.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE documents
         SET file_name = ?, mime_type = ?, source_created_at = ?, status = ?,
             staged_file = ?, file_size = ?, page_count = ?, document_type = ?,
             confidence = ?, reasoning = ?, possible_type = ?, classification_degraded = ?,
             external_ref = ?, canonical_path = ?, metadata_path = ?, extracted_json = ?,
             extraction_error = ?, error_message = ?, idempotency_key = ?,
             idempotency_expires_at = ?, finalize_attempts = ?, staging_cleaned = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             last_heartbeat = ?, updated_at = ?, processed_at = ?
         WHERE id = ?`,
		nullableString(doc.FileName),
		nullableString(doc.MimeType),
		nullableTimeValue(doc.SourceCreatedAt),
		doc.Status,
		nullableString(doc.StagedFile),
		doc.FileSize,
		doc.PageCount,
		nullableString(doc.DocumentType),
		doc.Confidence,
		nullableString(doc.Reasoning),
		nullableString(doc.PossibleType),
		boolToInt(doc.ClassificationDegraded),
		nullableString(doc.ExternalRef),
		nullableString(doc.CanonicalPath),
		nullableString(doc.MetadataPath),
		nullableString(doc.ExtractedJSON),
		nullableString(doc.ExtractionError),
		nullableString(doc.ErrorMessage),
		nullableString(doc.IdempotencyKey),
		nullableTime(doc.IdempotencyExpiresAt),
		doc.FinalizeAttempts,
		boolToInt(doc.StagingCleaned),
		nullableString(doc.ProgressStage),
		doc.ProgressPercent,
		nullableString(doc.ProgressMessage),
		nullableTime(doc.LastHeartbeat),
		doc.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(doc.ProcessedAt),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// DocumentsByStatus returns documents matching a status ordered by
// registration time.
func (s *Store) DocumentsByStatus(ctx context.Context, status Status) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY registered_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// List returns documents filtered by status set (or all documents when no
// status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Document, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + documentColumns + ` FROM documents`
	orderClause := ` ORDER BY registered_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// NextForStatuses returns the oldest document matching any of the provided
// statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE status IN (` + placeholders + `) ORDER BY registered_at LIMIT 1`
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

// Remove deletes a document by row identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
