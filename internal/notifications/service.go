package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docket/internal/config"
)

const userAgent = "Docket/0.1.0"

// Event identifies a notification category.
type Event string

const (
	EventProcessed Event = "processed"
	EventRejected  Event = "rejected"
	EventError     Event = "error"
	EventTest      Event = "test"
)

// Payload carries event-specific fields used to render the message.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		sendProcessed: cfg.Notifications.Processed,
		sendRejected:  cfg.Notifications.Rejected,
		sendErrors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	sendProcessed bool
	sendRejected  bool
	sendErrors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, enabled := n.render(event, payload)
	if !enabled {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	fileName := payloadString(payload, "file_name")
	docType := payloadString(payload, "document_type")
	archivePath := payloadString(payload, "archive_path")

	switch event {
	case EventProcessed:
		body := fmt.Sprintf("Processed: %s (%s)", fileName, docType)
		if archivePath != "" {
			body = fmt.Sprintf("%s\nArchived at: %s", body, archivePath)
		}
		return message{
			title: "Docket - Document Processed",
			body:  body,
			tags:  []string{"docket", "processed"},
		}, n.sendProcessed
	case EventRejected:
		reason := payloadString(payload, "reason")
		body := fmt.Sprintf("Rejected: %s", fileName)
		if reason != "" {
			body = fmt.Sprintf("%s\nReason: %s", body, reason)
		}
		return message{
			title: "Docket - Document Rejected",
			body:  body,
			tags:  []string{"docket", "rejected"},
		}, n.sendRejected
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if contextLabel := payloadString(payload, "context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if err, ok := payload["error"].(error); ok && err != nil {
			builder.WriteString(strings.TrimSpace(err.Error()))
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Docket - Error",
			body:     builder.String(),
			tags:     []string{"docket", "error", "alert"},
			priority: "high",
		}, n.sendErrors
	case EventTest:
		return message{
			title:    "Docket - Test",
			body:     "Notification system test",
			tags:     []string{"docket", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
