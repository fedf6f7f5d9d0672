package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/registry"
	"docket/internal/workflow"
)

func planSteps() []pipelineStep {
	return []pipelineStep{
		{name: "download"},
		{name: "classify"},
		{name: "store"},
		{name: "extract"},
		{name: "finalize"},
	}
}

func TestNextStepSelection(t *testing.T) {
	steps := planSteps()

	cases := []struct {
		status registry.Status
		want   string
	}{
		{registry.StatusNew, "download"},
		{registry.StatusDownloaded, "classify"},
		{registry.StatusClassified, "store"},
		{registry.StatusClassificationFailed, "store"},
		{registry.StatusStored, "extract"},
		{registry.StatusExtracted, "finalize"},
		{registry.StatusMetadataStorageFailed, "finalize"},
	}
	for _, tc := range cases {
		doc := &registry.Document{Status: tc.status}
		step, ok, err := nextStep(steps, doc, 5)
		if err != nil {
			t.Fatalf("nextStep(%s): %v", tc.status, err)
		}
		if !ok {
			t.Fatalf("nextStep(%s): expected a step", tc.status)
		}
		if step.name != tc.want {
			t.Errorf("nextStep(%s) = %s, want %s", tc.status, step.name, tc.want)
		}
	}
}

func TestNextStepTerminalStatuses(t *testing.T) {
	steps := planSteps()

	for _, status := range []registry.Status{
		registry.StatusProcessed,
		registry.StatusRejected,
		registry.StatusDownloadFailed,
		registry.StatusStoreFailed,
	} {
		doc := &registry.Document{Status: status}
		if _, ok, err := nextStep(steps, doc, 5); err != nil || ok {
			t.Errorf("nextStep(%s): expected no step, got ok=%v err=%v", status, ok, err)
		}
	}
}

func TestNextStepExtractionFailedDiscriminatesOnProcessedAt(t *testing.T) {
	steps := planSteps()

	pending := &registry.Document{Status: registry.StatusExtractionFailed}
	step, ok, err := nextStep(steps, pending, 5)
	if err != nil || !ok || step.name != "finalize" {
		t.Fatalf("unfinalized extraction failure should run finalize, got ok=%v name=%q err=%v", ok, step.name, err)
	}

	now := time.Now().UTC()
	done := &registry.Document{Status: registry.StatusExtractionFailed, ProcessedAt: &now}
	if _, ok, err := nextStep(steps, done, 5); err != nil || ok {
		t.Fatalf("finalized extraction failure is terminal, got ok=%v err=%v", ok, err)
	}
}

func TestNextStepEnforcesFinalizeBudget(t *testing.T) {
	steps := planSteps()

	doc := &registry.Document{Status: registry.StatusMetadataStorageFailed, FinalizeAttempts: 5}
	if _, _, err := nextStep(steps, doc, 5); err == nil {
		t.Fatal("expected finalize retry budget error")
	}

	doc.FinalizeAttempts = 4
	step, ok, err := nextStep(steps, doc, 5)
	if err != nil || !ok || step.name != "finalize" {
		t.Fatalf("within budget should run finalize, got ok=%v name=%q err=%v", ok, step.name, err)
	}
}

func TestPrintPipelineResultRendersSummary(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printPipelineResult(cmd, workflow.Output{
		Status:         registry.StatusProcessed,
		DocumentType:   "invoice",
		Confidence:     0.87,
		DocID:          "3f2a9c1e-doc",
		RegistryID:     12,
		CanonicalPath:  "invoice/2026/04/3f2a9c1e-doc.pdf",
		MetadataPath:   "metadata/invoice/2026/04/3f2a9c1e-doc.json",
		StagingCleaned: true,
	})

	out := buf.String()
	for _, want := range []string{
		"Document 3f2a9c1e-doc (#12) finished as Processed",
		"type: invoice (confidence 0.87)",
		"archive: invoice/2026/04/3f2a9c1e-doc.pdf",
		"metadata: metadata/invoice/2026/04/3f2a9c1e-doc.json",
		"staging: cleaned",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "error:") {
		t.Errorf("clean run must not print an error line:\n%s", out)
	}
}
