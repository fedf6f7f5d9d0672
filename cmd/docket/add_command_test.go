package main

import (
	"context"
	"testing"

	"docket/internal/registry"
)

func TestAddRegistersDocument(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "add", "scan-123", "--name", "letter.pdf")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Registered document #1")

	doc, err := env.store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if doc.SourceFileID != "scan-123" {
		t.Fatalf("unexpected source file id %q", doc.SourceFileID)
	}
	if doc.FileName != "letter.pdf" {
		t.Fatalf("unexpected file name %q", doc.FileName)
	}
	if doc.Status != registry.StatusNew {
		t.Fatalf("expected new status, got %s", doc.Status)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "add", "scan-42"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	out, _, err := runCLI(t, env.configPath, "add", "scan-42")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	requireContains(t, out, "already registered")
}

func TestShowDocument(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "add", "scan-7", "--name", "invoice_007.pdf"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "invoice_007.pdf")
	requireContains(t, out, "scan-7")
	requireContains(t, out, "New")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "add", "scan-9"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Registry")
	requireContains(t, out, "Total documents")
	requireContains(t, out, "Database")
}
