package archiving

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/objectstore"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/testsupport"
)

func newTestArchiver(t *testing.T, cfg *config.Config) (*Archiver, *objectstore.FS) {
	t.Helper()
	objects, err := objectstore.NewFS(cfg.Paths.ArchiveDir)
	if err != nil {
		t.Fatalf("objectstore.NewFS: %v", err)
	}
	return NewArchiverWithDependencies(cfg, logging.NewNop(), objects), objects
}

func stagedDocument(t *testing.T, cfg *config.Config, docType string) *registry.Document {
	t.Helper()
	if err := os.MkdirAll(cfg.Paths.StagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	staged := filepath.Join(cfg.Paths.StagingDir, "doc.pdf")
	if err := os.WriteFile(staged, []byte("archived content"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &registry.Document{
		DocID:        "11111111-2222-3333-4444-555555555555",
		SourceFileID: "src-1",
		FileName:     "scan.pdf",
		DocumentType: docType,
		Status:       registry.StatusStoring,
		StagedFile:   staged,
	}
}

func TestPrepareDerivesCanonicalPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeInvoice))
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !strings.HasPrefix(doc.CanonicalPath, "invoice/") {
		t.Fatalf("unexpected canonical path %q", doc.CanonicalPath)
	}
	if !strings.HasPrefix(doc.MetadataPath, document.MetadataRoot+"/") {
		t.Fatalf("unexpected metadata path %q", doc.MetadataPath)
	}
	if !strings.HasSuffix(doc.MetadataPath, ".json") {
		t.Fatalf("metadata path missing .json suffix: %q", doc.MetadataPath)
	}
}

func TestPrepareKeepsExistingCanonicalPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeInvoice))
	doc.CanonicalPath = "invoice/2026/01/frozen.pdf"
	doc.MetadataPath = "metadata/invoice/2026/01/frozen.json"
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if doc.CanonicalPath != "invoice/2026/01/frozen.pdf" {
		t.Fatalf("canonical path was recomputed: %q", doc.CanonicalPath)
	}
}

func TestExecuteArchivesDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, objects := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeInvoice))
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	rc, err := objects.Open(context.Background(), doc.CanonicalPath)
	if err != nil {
		t.Fatalf("archived object missing: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "archived content" {
		t.Fatalf("unexpected archive content %q", data)
	}
	if doc.ExternalRef != doc.CanonicalPath {
		t.Fatalf("external ref %q does not match canonical path", doc.ExternalRef)
	}
	if doc.StagedFile != "" {
		t.Fatalf("staged file reference not cleared: %q", doc.StagedFile)
	}
	if !doc.StagingCleaned {
		t.Fatal("staging not marked cleaned after archive")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.StagingDir, "doc.pdf")); !os.IsNotExist(err) {
		t.Fatalf("staged copy still on disk after archive: %v", err)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, objects := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeStatement))
	stagedPath := doc.StagedFile
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}
	// A duplicate trigger re-downloads different bytes; the re-run must not
	// clobber the committed archive.
	if err := os.WriteFile(stagedPath, []byte("different bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc.StagedFile = stagedPath
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("second Execute returned error: %v", err)
	}
	rc, err := objects.Open(context.Background(), doc.CanonicalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "archived content" {
		t.Fatalf("re-execution rewrote the archived object: %q", data)
	}
}

func TestDegradedClassificationStillArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeUnknown))
	doc.ClassificationDegraded = true
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !strings.HasPrefix(doc.CanonicalPath, "unknown/") {
		t.Fatalf("degraded documents should file under unknown, got %q", doc.CanonicalPath)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
}

func TestResumesWhenStagedFileLostButArchived(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)

	doc := stagedDocument(t, cfg, string(document.TypeInvoice))
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	// Crash-resume: status never committed, staged copy gone, object durable.
	resumed := &registry.Document{
		DocID:         doc.DocID,
		SourceFileID:  doc.SourceFileID,
		FileName:      doc.FileName,
		DocumentType:  doc.DocumentType,
		Status:        registry.StatusStoring,
		CanonicalPath: doc.CanonicalPath,
		MetadataPath:  doc.MetadataPath,
		StagedFile:    filepath.Join(cfg.Paths.StagingDir, "doc.pdf"),
	}
	if err := handler.Prepare(context.Background(), resumed); err != nil {
		t.Fatalf("Prepare on resume returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), resumed); err != nil {
		t.Fatalf("Execute on resume returned error: %v", err)
	}
	if !resumed.StagingCleaned || resumed.ExternalRef != resumed.CanonicalPath {
		t.Fatalf("resume did not settle document state: %+v", resumed)
	}
}

func TestPrepareRejectsMissingStagedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)

	doc := &registry.Document{DocID: "doc-1", Status: registry.StatusStoring}
	err := handler.Prepare(context.Background(), doc)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler, _ := newTestArchiver(t, cfg)
	if health := handler.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}
}
