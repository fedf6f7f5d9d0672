package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FS {
	t.Helper()
	store, err := NewFS(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewFS returned error: %v", err)
	}
	return store
}

func TestPutAndOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(src, []byte("pdf bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "invoice/2026/03/abc.pdf", src); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	rc, err := store.Open(ctx, "invoice/2026/03/abc.pdf")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutBytes(ctx, "letter/2026/01/x.pdf", []byte("first")); err != nil {
		t.Fatalf("PutBytes returned error: %v", err)
	}
	if err := store.PutBytes(ctx, "letter/2026/01/x.pdf", []byte("second")); err != nil {
		t.Fatalf("repeat PutBytes returned error: %v", err)
	}

	rc, err := store.Open(ctx, "letter/2026/01/x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "first" {
		t.Fatalf("existing object was rewritten: %q", data)
	}
}

func TestExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "missing.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("missing key reported as present")
	}
	if err := store.PutBytes(ctx, "present.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	ok, err = store.Exists(ctx, "present.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("stored key reported as missing")
	}
}

func TestKeyEscapeRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside.pdf", "/etc/passwd", "a/../../b"} {
		if err := store.PutBytes(ctx, key, []byte("x")); err == nil {
			t.Fatalf("key %q was accepted", key)
		}
	}
}

func TestNoPartialObjectsLeftBehind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "a/b.pdf", filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected error for missing source")
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "a" {
			t.Fatalf("unexpected leftover %s", e.Name())
		}
	}
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
