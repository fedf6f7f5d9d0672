package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"docket/internal/config"
	"docket/internal/services"
)

func TestListWalksPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		page := r.URL.Query().Get("page")
		var resp listPage
		switch page {
		case "1":
			resp = listPage{
				Files:   []SourceFile{{ID: "f-1", FileName: "a.pdf"}, {ID: "f-2", FileName: "b.pdf"}},
				HasMore: true,
			}
		case "2":
			resp = listPage{Files: []SourceFile{{ID: "f-3", FileName: "c.pdf"}}}
		default:
			t.Fatalf("unexpected page %q", page)
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(config.Source{BaseURL: server.URL, APIToken: "token", PageSize: 2})
	files, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[2].ID != "f-3" {
		t.Fatalf("unexpected last file %+v", files[2])
	}
}

func TestListServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(config.Source{BaseURL: server.URL})
	if _, err := client.List(context.Background()); err == nil {
		t.Fatal("expected error")
	} else if !services.Retryable(err) {
		t.Fatal("server errors should be retryable")
	}
}

func TestFetchSendsIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/f-9/content" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "key-123" {
			t.Fatalf("unexpected idempotency key %q", got)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("pdf bytes"))
	}))
	defer server.Close()

	client := NewClient(config.Source{BaseURL: server.URL})
	body, meta, err := client.Fetch(context.Background(), "f-9", "key-123")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("unexpected body %q", data)
	}
	if meta.MimeType != "application/pdf" {
		t.Fatalf("unexpected mime type %q", meta.MimeType)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(config.Source{BaseURL: server.URL})
	_, _, err := client.Fetch(context.Background(), "gone", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestFetchEmptyID(t *testing.T) {
	client := NewClient(config.Source{BaseURL: "http://localhost:1"})
	if _, _, err := client.Fetch(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(config.Source{BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestMissingBaseURL(t *testing.T) {
	client := NewClient(config.Source{})
	if _, err := client.List(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}
