package registry

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a registered document.
type Status string

const (
	StatusNew                    Status = "new"
	StatusDownloading            Status = "downloading"
	StatusDownloaded             Status = "downloaded"
	StatusDownloadFailed         Status = "download_failed"
	StatusClassifying            Status = "classifying"
	StatusClassified             Status = "classified"
	StatusClassificationFailed   Status = "classification_failed"
	StatusStoring                Status = "storing"
	StatusStored                 Status = "stored"
	StatusStoreFailed            Status = "store_failed"
	StatusExtracting             Status = "extracting"
	StatusExtracted              Status = "extracted"
	StatusExtractionFailed       Status = "extraction_failed"
	StatusSavingMetadata         Status = "saving_metadata"
	StatusMetadataStorageFailed  Status = "metadata_storage_failed"
	StatusProcessed              Status = "processed"
	StatusRejected               Status = "rejected"
)

// DaemonStopReason is the error message set when runs are interrupted by
// daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusNew,
	StatusDownloading,
	StatusDownloaded,
	StatusDownloadFailed,
	StatusClassifying,
	StatusClassified,
	StatusClassificationFailed,
	StatusStoring,
	StatusStored,
	StatusStoreFailed,
	StatusExtracting,
	StatusExtracted,
	StatusExtractionFailed,
	StatusSavingMetadata,
	StatusMetadataStorageFailed,
	StatusProcessed,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDownloading:    {},
	StatusClassifying:    {},
	StatusStoring:        {},
	StatusExtracting:     {},
	StatusSavingMetadata: {},
}

var failedStatuses = map[Status]struct{}{
	StatusDownloadFailed:        {},
	StatusStoreFailed:           {},
	StatusMetadataStorageFailed: {},
}

// Document represents a registered source file persisted in SQLite.
type Document struct {
	ID                     int64
	DocID                  string
	SourceFileID           string
	FileName               string
	MimeType               string
	SourceCreatedAt        time.Time
	Status                 Status
	StagedFile             string
	FileSize               int64
	PageCount              int
	DocumentType           string
	Confidence             float64
	Reasoning              string
	PossibleType           string
	ClassificationDegraded bool
	ExternalRef            string
	CanonicalPath          string
	MetadataPath           string
	ExtractedJSON          string
	ExtractionError        string
	ErrorMessage           string
	IdempotencyKey         string
	IdempotencyExpiresAt   *time.Time
	FinalizeAttempts       int
	StagingCleaned         bool
	ProgressStage          string
	ProgressPercent        float64
	ProgressMessage        string
	LastHeartbeat          *time.Time
	RegisteredAt           time.Time
	UpdatedAt              time.Time
	ProcessedAt            *time.Time
}

// HealthSummary describes aggregated registry counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Processed  int
	Rejected   int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (d Document) IsProcessing() bool {
	return IsProcessingStatus(d.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsFailedStatus reports whether a status is a stage failure resting state.
func IsFailedStatus(status Status) bool {
	_, ok := failedStatuses[status]
	return ok
}

// IsFinal reports whether the document has reached a resting state the
// workflow never picks up again on its own.
func (d Document) IsFinal() bool {
	switch d.Status {
	case StatusProcessed, StatusRejected, StatusDownloadFailed, StatusStoreFailed:
		return true
	case StatusExtractionFailed:
		return d.ProcessedAt != nil
	case StatusMetadataStorageFailed:
		return false
	}
	return false
}

// InitProgress resets progress fields at the start of a stage attempt.
// The existing stage label is preserved when already set so resumed runs
// keep their original label.
func (d *Document) InitProgress(stage, message string) {
	if d.ProgressStage == "" {
		d.ProgressStage = stage
	}
	d.ProgressMessage = message
	d.ProgressPercent = 0
	d.ErrorMessage = ""
}

// SetProgress updates all three progress fields together.
func (d *Document) SetProgress(stage, message string, percent float64) {
	d.ProgressStage = stage
	d.ProgressMessage = message
	d.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (d *Document) SetProgressComplete(stage, message string) {
	d.SetProgress(stage, message, 100)
}

// SetFailed marks the document as halted with the given status and message.
func (d *Document) SetFailed(status Status, message string) {
	d.Status = status
	d.ErrorMessage = message
	d.ProgressPercent = 0
	d.ProgressMessage = message
	d.LastHeartbeat = nil
	d.ProgressStage = "Failed"
}
