package classifying

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/logging"
	"docket/internal/pdftext"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/services/docai"
	"docket/internal/testsupport"
)

type stubModel struct {
	result    document.Classification
	err       error
	calls     int
	lastInput docai.ClassifyInput
	healthErr error
}

func (s *stubModel) Classify(_ context.Context, input docai.ClassifyInput) (document.Classification, error) {
	s.calls++
	s.lastInput = input
	return s.result, s.err
}

func (s *stubModel) HealthCheck(context.Context) error { return s.healthErr }

func stagedDocument(t *testing.T, cfg *config.Config) *registry.Document {
	t.Helper()
	staged := filepath.Join(cfg.Paths.StagingDir, "doc.pdf")
	testsupport.WriteStagedDocument(t, staged, 32)
	return &registry.Document{
		DocID:        "doc-1",
		SourceFileID: "src-1",
		FileName:     "scan.pdf",
		Status:       registry.StatusClassifying,
		StagedFile:   staged,
	}
}

func fixedInspect(info pdftext.Info) func(string, int) (pdftext.Info, error) {
	return func(string, int) (pdftext.Info, error) { return info, nil }
}

func newTestClassifier(cfg *config.Config, model ModelClient) *Classifier {
	handler := NewClassifierWithDependencies(cfg, logging.NewNop(), model)
	handler.inspect = fixedInspect(pdftext.Info{PageCount: 3, Excerpt: "Invoice #4411 total 120 EUR"})
	return handler
}

func TestExecuteClassifiesDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := &stubModel{result: document.Classification{Type: document.TypeInvoice, Confidence: 0.95, Reasoning: "amount due"}}
	handler := newTestClassifier(cfg, model)

	doc := stagedDocument(t, cfg)
	if err := handler.Prepare(context.Background(), doc); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if doc.Status != registry.StatusClassifying {
		t.Fatalf("handler changed status to %s", doc.Status)
	}
	if doc.DocumentType != string(document.TypeInvoice) {
		t.Fatalf("unexpected type %q", doc.DocumentType)
	}
	if doc.PageCount != 3 {
		t.Fatalf("unexpected page count %d", doc.PageCount)
	}
	if doc.ClassificationDegraded {
		t.Fatal("successful classification marked degraded")
	}
	if model.lastInput.Excerpt == "" {
		t.Fatal("model did not receive the excerpt")
	}
}

func TestExecuteGatesLowConfidenceToUnknown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.ConfidenceThreshold = 0.8
	model := &stubModel{result: document.Classification{Type: document.TypeLetter, Confidence: 0.4, Reasoning: "maybe"}}
	handler := newTestClassifier(cfg, model)

	doc := stagedDocument(t, cfg)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if doc.DocumentType != string(document.TypeUnknown) {
		t.Fatalf("low confidence should gate to unknown, got %q", doc.DocumentType)
	}
	if doc.PossibleType != string(document.TypeLetter) {
		t.Fatalf("expected possible type to record the guess, got %q", doc.PossibleType)
	}
	if doc.ClassificationDegraded {
		t.Fatal("gating is not degradation")
	}
}

func TestExecuteDegradesWhenModelUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Retry.Classify = config.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1, MinDelayMS: 1, MaxDelayMS: 1}
	model := &stubModel{err: services.Wrap(services.ErrExternalService, "docai", "classify", "model down", nil)}
	handler := newTestClassifier(cfg, model)

	doc := stagedDocument(t, cfg)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("degraded classification must not fail the stage: %v", err)
	}
	if doc.Status != registry.StatusClassificationFailed {
		t.Fatalf("expected classification_failed, got %s", doc.Status)
	}
	if !doc.ClassificationDegraded {
		t.Fatal("expected degraded flag")
	}
	if doc.DocumentType != string(document.TypeUnknown) {
		t.Fatalf("degraded document must be unknown, got %q", doc.DocumentType)
	}
	if doc.Confidence != 0 {
		t.Fatalf("degraded confidence must be 0, got %v", doc.Confidence)
	}
	if !strings.HasPrefix(doc.Reasoning, "classification failed") {
		t.Fatalf("degrade must record an audit reasoning, got %q", doc.Reasoning)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", model.calls)
	}
}

func TestExecuteDegradesWithoutTextLayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := &stubModel{}
	handler := newTestClassifier(cfg, model)
	handler.inspect = fixedInspect(pdftext.Info{PageCount: 5})

	doc := stagedDocument(t, cfg)
	if err := handler.Execute(context.Background(), doc); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if doc.Status != registry.StatusClassificationFailed {
		t.Fatalf("expected classification_failed, got %s", doc.Status)
	}
	if doc.PageCount != 5 {
		t.Fatalf("page count should still be recorded, got %d", doc.PageCount)
	}
	if model.calls != 0 {
		t.Fatal("model must not be consulted without text")
	}
}

func TestPrepareRejectsMissingStagedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := newTestClassifier(cfg, &stubModel{})

	doc := &registry.Document{DocID: "doc-1", Status: registry.StatusClassifying}
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
	if health := newTestClassifier(cfg, &stubModel{}).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}
	sick := newTestClassifier(cfg, &stubModel{healthErr: errors.New("unreachable")})
	if health := sick.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy")
	}
}
