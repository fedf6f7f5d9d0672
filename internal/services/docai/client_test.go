package docai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docket/internal/config"
	"docket/internal/document"
	"docket/internal/services"
)

func testConfig(baseURL string) config.LLM {
	return config.LLM{APIKey: "test", BaseURL: baseURL, Model: "demo-model"}
}

func noSleep(context.Context, time.Duration) error { return nil }

func chatHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{"content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}
}

func TestClassifyParsesResult(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, `{"type":"invoice","confidence":0.92,"reasoning":"total amount due"}`))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	got, err := client.Classify(context.Background(), ClassifyInput{
		FileName:  "scan-001.pdf",
		PageCount: 2,
		Excerpt:   "INVOICE #4411 Amount due: 120.00 EUR",
	})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.Type != document.TypeInvoice {
		t.Fatalf("expected invoice, got %s", got.Type)
	}
	if got.Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", got.Confidence)
	}
	if got.Reasoning == "" {
		t.Fatal("expected reasoning to be set")
	}
}

func TestClassifyUnknownTypeAndClampedConfidence(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, `{"type":"receipt","confidence":1.7,"reasoning":"odd"}`))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	got, err := client.Classify(context.Background(), ClassifyInput{FileName: "x.pdf", Excerpt: "text"})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.Type != document.TypeUnknown {
		t.Fatalf("expected unknown, got %s", got.Type)
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", got.Confidence)
	}
}

func TestClassifyEmptyExcerpt(t *testing.T) {
	client := NewClient(testConfig("http://localhost:1"), WithSleeper(noSleep))
	_, err := client.Classify(context.Background(), ClassifyInput{FileName: "x.pdf"})
	if err == nil {
		t.Fatal("expected error for empty excerpt")
	}
	if services.Retryable(err) {
		t.Fatal("validation error must not be retryable")
	}
}

func TestClassifyCodeFencedResponse(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "```json\n{\"type\":\"letter\",\"confidence\":0.8,\"reasoning\":\"greeting\"}\n```"))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	got, err := client.Classify(context.Background(), ClassifyInput{FileName: "x.pdf", Excerpt: "Dear Sir"})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.Type != document.TypeLetter {
		t.Fatalf("expected letter, got %s", got.Type)
	}
}

func TestExtractInvoice(t *testing.T) {
	server := httptest.NewServer(chatHandler(t,
		`{"vendor":"Acme GmbH","invoice_number":"4411","invoice_date":"2026-03-01","total_amount":120,"currency":"EUR"}`))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	payload, err := client.Extract(context.Background(), document.TypeInvoice, ExtractInput{
		FileName: "scan-001.pdf",
		Excerpt:  "INVOICE #4411 Amount due: 120.00 EUR",
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if payload.Invoice == nil {
		t.Fatal("expected invoice data")
	}
	if payload.Invoice.Vendor != "Acme GmbH" || payload.Invoice.TotalAmount != 120 {
		t.Fatalf("unexpected invoice data: %+v", payload.Invoice)
	}
}

func TestExtractUnknownTypeRejected(t *testing.T) {
	client := NewClient(testConfig("http://localhost:1"), WithSleeper(noSleep))
	_, err := client.Extract(context.Background(), document.TypeUnknown, ExtractInput{FileName: "x.pdf", Excerpt: "text"})
	if err == nil {
		t.Fatal("expected error for unextractable type")
	}
}

func TestCompletionRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		chatHandler(t, `{"ok":true}`)(w, r)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if !strings.Contains(content, `"ok"`) {
		t.Fatalf("unexpected content %q", content)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestCompletionDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestRetryAfterHeaderWins(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		chatHandler(t, `{"ok":true}`)(w, r)
	}))
	defer server.Close()

	var waited time.Duration
	client := NewClient(testConfig(server.URL), WithSleeper(func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if waited != 7*time.Second {
		t.Fatalf("expected 7s wait from Retry-After, got %v", waited)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestHealthCheckMissingConfig(t *testing.T) {
	client := NewClient(config.LLM{})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestDecodeJSONWithProse(t *testing.T) {
	var out struct {
		Type string `json:"type"`
	}
	content := "Here is the result:\n{\"type\":\"invoice\"}\nHope that helps."
	if err := DecodeJSON(content, &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Type != "invoice" {
		t.Fatalf("unexpected type %q", out.Type)
	}
}
