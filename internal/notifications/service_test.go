package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docket/internal/config"
	"docket/internal/notifications"
	"docket/internal/testsupport"
)

type recordedRequest struct {
	title    string
	priority string
	body     string
}

func newTestService(t *testing.T, requests *[]recordedRequest) notifications.Service {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*requests = append(*requests, recordedRequest{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Processed = true
	cfg.Notifications.Rejected = true
	cfg.Notifications.Errors = true
	return notifications.NewService(cfg)
}

func TestPublishProcessedIncludesArchivePath(t *testing.T) {
	var requests []recordedRequest
	svc := newTestService(t, &requests)

	err := svc.Publish(context.Background(), notifications.EventProcessed, notifications.Payload{
		"file_name":     "scan_001.pdf",
		"document_type": "invoice",
		"archive_path":  "invoice/2026/02/doc.pdf",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	if requests[0].title != "Docket - Document Processed" {
		t.Fatalf("unexpected title %q", requests[0].title)
	}
	if want := "invoice/2026/02/doc.pdf"; !contains(requests[0].body, want) {
		t.Fatalf("body %q missing %q", requests[0].body, want)
	}
}

func TestPublishErrorUsesHighPriority(t *testing.T) {
	var requests []recordedRequest
	svc := newTestService(t, &requests)

	err := svc.Publish(context.Background(), notifications.EventError, notifications.Payload{
		"error":   errors.New("boom"),
		"context": "download (doc doc-1)",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	if requests[0].priority != "high" {
		t.Fatalf("expected high priority, got %q", requests[0].priority)
	}
	if !contains(requests[0].body, "boom") || !contains(requests[0].body, "download") {
		t.Fatalf("unexpected body %q", requests[0].body)
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{body: string(body)})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Rejected = false
	svc := notifications.NewService(cfg)

	err := svc.Publish(context.Background(), notifications.EventRejected, notifications.Payload{
		"file_name": "scan.pdf",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(requests))
	}
}

func TestNoTopicYieldsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("noop Publish must not fail: %v", err)
	}
}

func TestNewServiceRespectsConfig(t *testing.T) {
	cfg := &config.Config{}
	svc := notifications.NewService(cfg)
	if svc == nil {
		t.Fatal("expected service")
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
