package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goldtier/pkg/protocol"
)

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client calls a running daemon's admin API.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for addr ("host:port" or a full URL).
// httpClient may be nil.
func NewClient(addr string, httpClient *http.Client) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: base, http: httpClient}
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (*protocol.Status, error) {
	var st protocol.Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RunCycle triggers POST /cycle and returns the report.
func (c *Client) RunCycle(ctx context.Context) (*protocol.CycleReport, error) {
	var report protocol.CycleReport
	if err := c.do(ctx, http.MethodPost, "/cycle", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AddJob registers a scheduled job and returns its ID.
func (c *Client) AddJob(ctx context.Context, spec protocol.JobSpec) (string, error) {
	var resp IDResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", spec, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// EnableJob enables job id.
func (c *Client) EnableJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/enable", nil, nil)
}

// DisableJob disables job id.
func (c *Client) DisableJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/disable", nil, nil)
}

// Inject seeds a work item and returns its ID.
func (c *Client) Inject(ctx context.Context, req InjectRequest) (string, error) {
	var resp IDResponse
	if err := c.do(ctx, http.MethodPost, "/inject", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Healthy reports whether GET /healthz succeeds.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil) == nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
