package docai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docket/internal/config"
	"docket/internal/services"
)

const (
	defaultTimeout          = 120 * time.Second
	defaultRetryMaxAttempts = 4
	defaultRetryBackoff     = 2 * time.Second
	maxRetryAfter           = 2 * time.Minute
)

// Client talks to an OpenAI-compatible chat-completion endpoint and asks
// for strict JSON responses.
type Client struct {
	apiKey           string
	baseURL          string
	model            string
	httpClient       *http.Client
	retryMaxAttempts int
	retryBackoff     time.Duration
	sleep            func(context.Context, time.Duration) error
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryMaxAttempts overrides how many times a request is attempted.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryMaxAttempts = attempts
		}
	}
}

// WithRetryBackoff overrides the base delay between retry attempts.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(c *Client) {
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithSleeper overrides how the client waits between retries. Tests use it
// to avoid real delays.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient builds a client from the model connection settings.
func NewClient(cfg config.LLM, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		apiKey:           strings.TrimSpace(cfg.APIKey),
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:            strings.TrimSpace(cfg.Model),
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryMaxAttempts,
		retryBackoff:     defaultRetryBackoff,
		sleep:            sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) validate() error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "docai", "validate", "api key is not configured", nil)
	}
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "docai", "validate", "base URL is not configured", nil)
	}
	if c.model == "" {
		return services.Wrap(services.ErrConfiguration, "docai", "validate", "model is not configured", nil)
	}
	return nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// CompleteJSON sends a system/user prompt pair and returns the raw JSON
// document the model produced.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "docai", "complete", "failed to encode request", err)
	}

	content, err := c.completionWithRetry(ctx, body)
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) completionWithRetry(ctx context.Context, body []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		content, err := c.completion(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "docai", "complete", "request canceled", ctx.Err())
		}
		wait, retriable := retryDelay(err, c.retryBackoff, attempt)
		if !retriable || attempt == c.retryMaxAttempts {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return "", services.Wrap(services.ErrTimeout, "docai", "complete", "request canceled during backoff", err)
		}
	}
	return "", services.Wrap(services.ErrExternalService, "docai", "complete", "model request failed", lastErr)
}

// retryDelay reports how long to wait before the next attempt and whether
// the error is worth retrying at all. A server Retry-After hint wins over
// the computed backoff.
func retryDelay(err error, base time.Duration, attempt int) (time.Duration, bool) {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if !retryableStatus(statusErr.StatusCode) {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			if statusErr.RetryAfter > maxRetryAfter {
				return maxRetryAfter, true
			}
			return statusErr.RetryAfter, true
		}
	}
	wait := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait, true
}

func (c *Client) completion(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	choice := parsed.Choices[0].Message
	if choice.Refusal != "" {
		return "", fmt.Errorf("model refused the request: %s", choice.Refusal)
	}
	content := strings.TrimSpace(choice.Content)
	if content == "" {
		return "", errors.New("response contained no content")
	}
	return content, nil
}

// HealthCheck verifies the endpoint is reachable and the API key is
// accepted by listing available models.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "docai", "health", "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "docai", "health", "model endpoint unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrExternalService, "docai", "health",
			fmt.Sprintf("model endpoint returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// DecodeJSON unmarshals a model response into target, tolerating code
// fences and prose wrapped around the JSON document.
func DecodeJSON(content string, target any) error {
	cleaned := sanitizeJSON(content)
	if cleaned == "" {
		return errors.New("response contained no JSON")
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// sanitizeJSON strips markdown code fences and any leading or trailing
// prose, returning the outermost JSON object or array.
func sanitizeJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
