package registry

import (
	"database/sql"
	"errors"
	"time"
)

const documentColumns = "id, doc_id, source_file_id, file_name, mime_type, source_created_at, status, staged_file, file_size, page_count, document_type, confidence, reasoning, possible_type, classification_degraded, external_ref, canonical_path, metadata_path, extracted_json, extraction_error, error_message, idempotency_key, idempotency_expires_at, finalize_attempts, staging_cleaned, progress_stage, progress_percent, progress_message, last_heartbeat, registered_at, updated_at, processed_at"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id                int64
		docID             string
		sourceFileID      string
		fileName          sql.NullString
		mimeType          sql.NullString
		sourceCreatedRaw  sql.NullString
		statusStr         string
		stagedFile        sql.NullString
		fileSize          sql.NullInt64
		pageCount         sql.NullInt64
		documentType      sql.NullString
		confidence        sql.NullFloat64
		reasoning         sql.NullString
		possibleType      sql.NullString
		classifyDegraded  sql.NullInt64
		externalRef       sql.NullString
		canonicalPath     sql.NullString
		metadataPath      sql.NullString
		extractedJSON     sql.NullString
		extractionError   sql.NullString
		errorMessage      sql.NullString
		idempotencyKey    sql.NullString
		idempotencyExpRaw sql.NullString
		finalizeAttempts  sql.NullInt64
		stagingCleaned    sql.NullInt64
		progressStage     sql.NullString
		progressPercent   sql.NullFloat64
		progressMessage   sql.NullString
		lastHeartbeatRaw  sql.NullString
		registeredRaw     sql.NullString
		updatedRaw        sql.NullString
		processedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&docID,
		&sourceFileID,
		&fileName,
		&mimeType,
		&sourceCreatedRaw,
		&statusStr,
		&stagedFile,
		&fileSize,
		&pageCount,
		&documentType,
		&confidence,
		&reasoning,
		&possibleType,
		&classifyDegraded,
		&externalRef,
		&canonicalPath,
		&metadataPath,
		&extractedJSON,
		&extractionError,
		&errorMessage,
		&idempotencyKey,
		&idempotencyExpRaw,
		&finalizeAttempts,
		&stagingCleaned,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&lastHeartbeatRaw,
		&registeredRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:               id,
		DocID:            docID,
		SourceFileID:     sourceFileID,
		FileName:         fileName.String,
		MimeType:         mimeType.String,
		Status:           Status(statusStr),
		StagedFile:       stagedFile.String,
		FileSize:         fileSize.Int64,
		PageCount:        int(pageCount.Int64),
		DocumentType:     documentType.String,
		Confidence:       confidence.Float64,
		Reasoning:        reasoning.String,
		PossibleType:     possibleType.String,
		ExternalRef:      externalRef.String,
		CanonicalPath:    canonicalPath.String,
		MetadataPath:     metadataPath.String,
		ExtractedJSON:    extractedJSON.String,
		ExtractionError:  extractionError.String,
		ErrorMessage:     errorMessage.String,
		IdempotencyKey:   idempotencyKey.String,
		FinalizeAttempts: int(finalizeAttempts.Int64),
		ProgressStage:    progressStage.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
	}
	if classifyDegraded.Valid {
		doc.ClassificationDegraded = classifyDegraded.Int64 != 0
	}
	if stagingCleaned.Valid {
		doc.StagingCleaned = stagingCleaned.Int64 != 0
	}

	if created, err := parseTimeString(sourceCreatedRaw.String); err == nil {
		doc.SourceCreatedAt = created
	}
	if registered, err := parseTimeString(registeredRaw.String); err == nil {
		doc.RegisteredAt = registered
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		doc.UpdatedAt = updated
	}
	if idempotencyExpRaw.Valid {
		if expires, err := parseTimeString(idempotencyExpRaw.String); err == nil {
			doc.IdempotencyExpiresAt = &expires
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			doc.LastHeartbeat = &heartbeat
		}
	}
	if processedRaw.Valid {
		if processed, err := parseTimeString(processedRaw.String); err == nil {
			doc.ProcessedAt = &processed
		}
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func nullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
