package workflow

import (
	"time"

	"docket/internal/identity"
	"docket/internal/registry"
)

// Input describes one source file entering the pipeline, as handed over by
// the intake scanner or a manual registration.
type Input struct {
	SourceFileID string
	FileName     string
	MimeType     string
	CreatedAt    time.Time
	FileSize     int64
}

// Record converts the input into the registry's registration form. The doc
// ID derives deterministically from the source file ID, so duplicate inputs
// for the same file converge on one row.
func (in Input) Record() (registry.NewDocument, error) {
	docID, err := identity.DocID(in.SourceFileID)
	if err != nil {
		return registry.NewDocument{}, err
	}
	return registry.NewDocument{
		DocID:           docID,
		SourceFileID:    in.SourceFileID,
		FileName:        in.FileName,
		MimeType:        in.MimeType,
		SourceCreatedAt: in.CreatedAt,
		FileSize:        in.FileSize,
	}, nil
}

// Output reflects a document's boundary fields after a run. The one-shot
// runner returns it directly; the daemon path records the same fields on
// the registry row.
type Output struct {
	Status         registry.Status
	DocumentType   string
	Confidence     float64
	DocID          string
	RegistryID     int64
	CanonicalPath  string
	MetadataPath   string
	StagingCleaned bool
	Err            string
}

// OutputOf snapshots the boundary view of a document.
func OutputOf(doc *registry.Document) Output {
	out := Output{
		Status:         doc.Status,
		DocumentType:   doc.DocumentType,
		Confidence:     doc.Confidence,
		DocID:          doc.DocID,
		RegistryID:     doc.ID,
		CanonicalPath:  doc.CanonicalPath,
		MetadataPath:   doc.MetadataPath,
		StagingCleaned: doc.StagingCleaned,
		Err:            doc.ErrorMessage,
	}
	if out.Err == "" {
		out.Err = doc.ExtractionError
	}
	return out
}
