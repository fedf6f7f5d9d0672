package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"docket/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := CheckDiskSpace("test", t.TempDir())
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}

	missing := CheckDiskSpace("test", filepath.Join(t.TempDir(), "nope"))
	if missing.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckSource_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckSource(context.Background(), config.Source{BaseURL: srv.URL})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckSource_MissingURL(t *testing.T) {
	result := CheckSource(context.Background(), config.Source{})
	if result.Passed {
		t.Fatal("expected failure for missing base url")
	}
}

func TestCheckModel_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	result := CheckModel(context.Background(), "test model", config.LLM{
		APIKey:  "key",
		BaseURL: srv.URL,
		Model:   "demo",
	})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckModel_MissingKey(t *testing.T) {
	result := CheckModel(context.Background(), "test model", config.LLM{BaseURL: "http://localhost:1"})
	if result.Passed {
		t.Fatal("expected failure for missing api key")
	}
}

func TestRunAllAndHelpers(t *testing.T) {
	results := []Result{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false},
	}
	if AllPassed(results) {
		t.Fatal("expected AllPassed to be false")
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0] != "b" {
		t.Fatalf("unexpected failed list %v", failed)
	}
	if !AllPassed(results[:1]) {
		t.Fatal("expected AllPassed to be true")
	}
}
