// Package source talks to the scanner service that feeds the pipeline. It
// lists newly scanned files for intake and downloads file content into the
// staging area.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docket/internal/config"
	"docket/internal/services"
)

const defaultPageSize = 100

// SourceFile is one scanned file as reported by the scanner service.
type SourceFile struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// FileMeta describes a fetched file body.
type FileMeta struct {
	MimeType string
	Size     int64
}

// Client is the HTTP connector to the scanner service.
type Client struct {
	baseURL  string
	apiToken string
	pageSize int
	http     *http.Client
}

// NewClient builds a connector from the source connection settings.
func NewClient(cfg config.Source) *Client {
	timeout := 60 * time.Second
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiToken: strings.TrimSpace(cfg.APIToken),
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) validate() error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "source", "validate", "source base URL is not configured", nil)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	return req, nil
}

type listPage struct {
	Files   []SourceFile `json:"files"`
	HasMore bool         `json:"has_more"`
}

// List walks the scanner's file listing page by page and returns every file
// it currently knows about. The registry's upsert semantics make repeated
// listings of the same files harmless.
func (c *Client) List(ctx context.Context) ([]SourceFile, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	var out []SourceFile
	for page := 1; ; page++ {
		query := url.Values{
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(c.pageSize)},
		}
		req, err := c.newRequest(ctx, http.MethodGet, "/files", query)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "source", "list", "failed to build request", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, "source", "list", "scanner service unreachable", err)
		}
		var parsed listPage
		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, statusError("list", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, services.Wrap(services.ErrExternalService, "source", "list", "unreadable listing response", decodeErr)
		}
		out = append(out, parsed.Files...)
		if !parsed.HasMore || len(parsed.Files) == 0 {
			return out, nil
		}
	}
}

// Fetch streams a file's content. The idempotency key travels as a header
// so the scanner can deduplicate repeated downloads of the same run.
func (c *Client) Fetch(ctx context.Context, fileID, idempotencyKey string) (io.ReadCloser, FileMeta, error) {
	if err := c.validate(); err != nil {
		return nil, FileMeta{}, err
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, FileMeta{}, services.Wrap(services.ErrValidation, "source", "fetch", "file id is empty", nil)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, FileMeta{}, services.Wrap(services.ErrValidation, "source", "fetch", "failed to build request", err)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, FileMeta{}, services.Wrap(services.ErrExternalService, "source", "fetch", "scanner service unreachable", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, FileMeta{}, services.Wrap(services.ErrNotFound, "source", "fetch", "file "+fileID+" not found at source", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, FileMeta{}, statusError("fetch", resp.StatusCode)
	}
	meta := FileMeta{
		MimeType: resp.Header.Get("Content-Type"),
		Size:     resp.ContentLength,
	}
	return resp.Body, meta, nil
}

// HealthCheck probes the scanner's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "source", "health", "failed to build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "source", "health", "scanner service unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("health", resp.StatusCode)
	}
	return nil
}

func statusError(operation string, code int) error {
	marker := services.ErrExternalService
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		marker = services.ErrConfiguration
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout:
		marker = services.ErrValidation
	}
	return services.Wrap(marker, "source", operation,
		fmt.Sprintf("scanner service returned status %d", code), nil)
}
