package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/registry"
	"docket/internal/services"
	"docket/internal/stage"
	"docket/internal/testsupport"
	"docket/internal/workflow"
)

func fullStageSet(download, classify, store, extract, finalize *stubStage) workflow.StageSet {
	return workflow.StageSet{
		Downloader: download,
		Classifier: classify,
		Archiver:   store,
		Extractor:  extract,
		Finalizer:  finalize,
	}
}

// finalizeStub mimics the real finalize handler: it decides the terminal
// outcome and stamps the processing timestamp itself.
func finalizeStub(outcome registry.Status) *stubStage {
	s := newStubStage("finalize")
	s.executeHook = func(doc *registry.Document) {
		now := time.Now().UTC()
		doc.ProcessedAt = &now
		doc.Status = outcome
	}
	return s
}

func TestManagerProcessesDocumentToCompletion(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	notifier := &captureNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(fullStageSet(
		newStubStage("download"),
		newStubStage("classify"),
		newStubStage("store"),
		newStubStage("extract"),
		finalizeStub(registry.StatusProcessed),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-complete", "complete.pdf")

	final := waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusProcessed
	})
	if final.ProcessedAt == nil {
		t.Fatal("expected processed_at to be set")
	}
	if final.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared at rest")
	}

	deadline := time.After(5 * time.Second)
	for notifier.eventsOf(notifications.EventProcessed) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected processed notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerReRegisteredDocumentKeepsOneRow(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &captureNotifier{})
	mgr.ConfigureStages(fullStageSet(
		newStubStage("download"),
		newStubStage("classify"),
		newStubStage("store"),
		newStubStage("extract"),
		finalizeStub(registry.StatusProcessed),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-rerun", "rerun.pdf")
	waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusProcessed
	})

	again := testsupport.RegisterDocument(t, store, "src-rerun", "rerun.pdf")
	if again.ID != doc.ID {
		t.Fatalf("re-registration created a second row: %d vs %d", again.ID, doc.ID)
	}
	if again.Status != registry.StatusProcessed {
		t.Fatalf("re-registration disturbed the finished run: %s", again.Status)
	}
}

func TestManagerDegradedClassificationStillArchives(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	classify := newStubStage("classify")
	classify.executeHook = func(doc *registry.Document) {
		doc.Status = registry.StatusClassificationFailed
		doc.ClassificationDegraded = true
		doc.DocumentType = "unknown"
		doc.PossibleType = "invoice"
	}

	archived := make(chan string, 1)
	archive := newStubStage("store")
	archive.executeHook = func(doc *registry.Document) {
		select {
		case archived <- doc.DocumentType:
		default:
		}
	}

	notifier := &captureNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(fullStageSet(
		newStubStage("download"),
		classify,
		archive,
		newStubStage("extract"),
		finalizeStub(registry.StatusRejected),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-degraded", "smudged.pdf")

	final := waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusRejected
	})
	if !final.ClassificationDegraded {
		t.Fatal("expected degraded flag to survive the pipeline")
	}
	if final.PossibleType != "invoice" {
		t.Fatalf("expected possible type to survive, got %q", final.PossibleType)
	}

	select {
	case docType := <-archived:
		if docType != "unknown" {
			t.Fatalf("archive stage saw type %q, want unknown", docType)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("archive stage never ran for the degraded document")
	}
}

func TestManagerStageFailureHaltsDocument(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	download := newStubStage("download")
	download.executeErr = services.Wrap(services.ErrExternalService, "download", "fetch", "source connector unreachable", errors.New("dial tcp: connection refused"))

	notifier := &captureNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(fullStageSet(
		download,
		newStubStage("classify"),
		newStubStage("store"),
		newStubStage("extract"),
		finalizeStub(registry.StatusProcessed),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-unreachable", "stuck.pdf")

	final := waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusDownloadFailed
	})
	if final.ErrorMessage == "" {
		t.Fatal("expected error message to be recorded")
	}
	if final.ProgressStage != "Failed" {
		t.Fatalf("expected progress stage Failed, got %q", final.ProgressStage)
	}

	deadline := time.After(5 * time.Second)
	for notifier.eventsOf(notifications.EventError) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected error notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerExtractionFailureStillFinalizes(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	extract := newStubStage("extract")
	extract.executeErr = services.Wrap(services.ErrExternalService, "extract", "complete", "model returned malformed JSON", nil)

	finalize := newStubStage("finalize")
	finalize.executeHook = func(doc *registry.Document) {
		now := time.Now().UTC()
		doc.ProcessedAt = &now
		doc.Status = registry.StatusExtractionFailed
	}

	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &captureNotifier{})
	mgr.ConfigureStages(fullStageSet(
		newStubStage("download"),
		newStubStage("classify"),
		newStubStage("store"),
		extract,
		finalize,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-badjson", "noisy.pdf")

	final := waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusExtractionFailed && d.ProcessedAt != nil
	})
	if final.ExtractionError == "" {
		t.Fatal("expected extraction error to be recorded")
	}
	if !final.IsFinal() {
		t.Fatal("expected finalized extraction failure to be terminal")
	}
}

func TestManagerFinalizeRetriesAreBounded(t *testing.T) {
	cfg := workflowConfig(t)
	cfg.Workflow.FinalizeRetryLimit = 2
	store := testsupport.MustOpenStore(t, cfg)

	finalize := newStubStage("finalize")
	finalize.executeErr = services.Wrap(services.ErrExternalService, "finalize", "put", "metadata write failed", nil)

	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &captureNotifier{})
	mgr.ConfigureStages(fullStageSet(
		newStubStage("download"),
		newStubStage("classify"),
		newStubStage("store"),
		newStubStage("extract"),
		finalize,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	doc := testsupport.RegisterDocument(t, store, "src-nostorage", "orphan.pdf")

	final := waitForDocument(t, store, doc.ID, 30*time.Second, func(d *registry.Document) bool {
		return d.Status == registry.StatusMetadataStorageFailed && d.FinalizeAttempts >= 2
	})
	if final.ProcessedAt != nil {
		t.Fatal("exhausted finalize must not look processed")
	}

	// Out of budget; the claim query must leave the document alone now.
	time.Sleep(500 * time.Millisecond)
	resting, err := store.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if resting.FinalizeAttempts != 2 {
		t.Fatalf("finalize kept retrying past the budget: %d attempts", resting.FinalizeAttempts)
	}
	if resting.Status != registry.StatusMetadataStorageFailed {
		t.Fatalf("expected metadata_storage_failed at rest, got %s", resting.Status)
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := newStubStage("download")
	handler.health = stage.Unhealthy("download", "source connector unreachable")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Downloader: handler})

	status := mgr.Status(context.Background())
	health, ok := status.StageHealth["download"]
	if !ok {
		t.Fatal("expected stage health entry for download")
	}
	if health.Ready {
		t.Fatalf("expected not ready health, got %+v", health)
	}
	if health.Detail != "source connector unreachable" {
		t.Fatalf("unexpected detail %q", health.Detail)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		mgr.Stop()
		t.Fatal("expected error starting without configured stages")
	}
}
