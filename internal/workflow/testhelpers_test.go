package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"docket/internal/config"
	"docket/internal/notifications"
	"docket/internal/registry"
	"docket/internal/stage"
	"docket/internal/testsupport"
)

type stubStage struct {
	name        string
	prepareHook func(*registry.Document)
	executeHook func(*registry.Document)
	prepareErr  error
	executeErr  error
	health      stage.Health
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, doc *registry.Document) error {
	if s.prepareHook != nil {
		s.prepareHook(doc)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, doc *registry.Document) error {
	if s.executeHook != nil {
		s.executeHook(doc)
	}
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

type capturedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type captureNotifier struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (c *captureNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{event: event, payload: payload})
	return nil
}

func (c *captureNotifier) eventsOf(event notifications.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.events {
		if e.event == event {
			count++
		}
	}
	return count
}

func workflowConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxActiveRuns(1))
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 0
	return cfg
}

// waitForDocument polls until the predicate holds or the deadline expires.
func waitForDocument(t *testing.T, store *registry.Store, id int64, timeout time.Duration, pred func(*registry.Document) bool) *registry.Document {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			doc, err := store.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID after timeout: %v", err)
			}
			t.Fatalf("timed out waiting for document condition; status=%s error=%q", doc.Status, doc.ErrorMessage)
		default:
		}
		doc, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if pred(doc) {
			return doc
		}
		time.Sleep(20 * time.Millisecond)
	}
}
