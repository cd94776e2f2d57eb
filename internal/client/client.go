// Package client talks to a running "sysview serve" instance.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sysview/sysview/internal/logging"
)

var log = logging.L("client")

const defaultTimeout = 30 * time.Second

// ErrServer wraps a failed result returned by the server.
var ErrServer = errors.New("server error")

// Client calls the dashboard API.
type Client struct {
	base  string
	http  *http.Client
	retry RetryConfig
}

// New returns a client for the server listening on addr (host:port or a
// full http URL).
func New(addr string, retry RetryConfig) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base:  base,
		http:  &http.Client{Timeout: defaultTimeout},
		retry: retry,
	}
}

type envelope struct {
	Status     string          `json:"status"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
	DurationMs int64           `json:"durationMs"`
}

// Health is the /api/health payload.
type Health struct {
	Status     string            `json:"status"`
	Pipelines  map[string]string `json:"pipelines"`
	Components map[string]string `json:"components"`
	Problems   []Problem         `json:"problems"`
}

// Problem is a source that was not healthy on its last pass.
type Problem struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Version is the /api/version payload.
type Version struct {
	Version  string `json:"version"`
	Elevated bool   `json:"elevated"`
	Clients  int    `json:"clients"`
	Pool     struct {
		Workers   int   `json:"workers"`
		Queued    int   `json:"queued"`
		Running   int64 `json:"running"`
		Completed int64 `json:"completed"`
		Rejected  int64 `json:"rejected"`
		Panicked  int64 `json:"panicked"`
	} `json:"pool"`
}

// RefreshCounts is the /api/refresh payload.
type RefreshCounts struct {
	Software int `json:"software"`
	Startup  int `json:"startup"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.call(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	err := c.call(ctx, http.MethodGet, "/api/version", nil, &v)
	return v, err
}

// Refresh asks the server to re-enumerate every list and waits for it.
func (c *Client) Refresh(ctx context.Context) (RefreshCounts, error) {
	var rc RefreshCounts
	err := c.call(ctx, http.MethodPost, "/api/refresh", []byte("{}"), &rc)
	return rc, err
}

// SetStartupEnabled toggles a startup entry by key or unique name.
func (c *Client) SetStartupEnabled(ctx context.Context, keyOrName string, enable bool) error {
	body, err := json.Marshal(map[string]any{"key": keyOrName, "enabled": enable})
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, "/api/startup/toggle", body, nil)
}

// Software fetches the software list, filtered by query when non-empty.
// Records are returned as raw JSON objects.
func (c *Client) Software(ctx context.Context, query string) ([]map[string]any, error) {
	path := "/api/software"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out []map[string]any
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := do(ctx, c.http, method, c.base+path, body, c.retry)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s (HTTP %d): %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || env.Status != "completed" {
		return fmt.Errorf("%s %s: %w: %s (HTTP %d)", method, path, ErrServer, env.Error, resp.StatusCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
