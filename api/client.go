package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/pipeline"
)

// DefaultBaseURL is the local development backend.
const DefaultBaseURL = "http://localhost:8000/api/v1"

const (
	defaultRetryDelay = 300 * time.Millisecond
	maxErrorBody      = 64 << 10
)

// Client calls the Sentimenta backend.
type Client struct {
	base           *url.URL
	http           *http.Client
	retryDelay     time.Duration
	onUnauthorized func()
	logger         *zap.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryDelay sets the pause before the single transport retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithOnUnauthorized registers fn to run whenever the backend answers 401.
func WithOnUnauthorized(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client rooted at baseURL, for example
// "http://localhost:8000/api/v1". An empty baseURL selects [DefaultBaseURL].
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:       u,
		http:       &http.Client{Timeout: 30 * time.Second},
		retryDelay: defaultRetryDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Me returns the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Verify checks that token is still accepted by the identity endpoint.
func (c *Client) Verify(ctx context.Context, token string) (Identity, error) {
	return c.Me(ctx, token)
}

// ListPipelineRuns returns the most recent pipeline runs.
func (c *Client) ListPipelineRuns(ctx context.Context, token string) ([]PipelineRun, error) {
	var runs []PipelineRun
	if err := c.do(ctx, http.MethodGet, "/pipeline/runs", token, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// PipelineRun returns one run.
func (c *Client) PipelineRun(ctx context.Context, token, runID string) (PipelineRun, error) {
	var run PipelineRun
	if err := c.do(ctx, http.MethodGet, "/pipeline/runs/"+url.PathEscape(runID), token, nil, &run); err != nil {
		return PipelineRun{}, err
	}
	return run, nil
}

// PipelineRunStatus returns the status counters of one run.
func (c *Client) PipelineRunStatus(ctx context.Context, token, runID string) (pipeline.Progress, error) {
	var p pipeline.Progress
	if err := c.do(ctx, http.MethodGet, "/pipeline/runs/"+url.PathEscape(runID)+"/status", token, nil, &p); err != nil {
		return pipeline.Progress{}, err
	}
	return p, nil
}

// SyncConnection starts a pipeline run for a social connection.
func (c *Client) SyncConnection(ctx context.Context, token, connectionID string) (SyncResponse, error) {
	var out SyncResponse
	path := "/connections/" + url.PathEscape(connectionID) + "/sync"
	if err := c.do(ctx, http.MethodPost, path, token, struct{}{}, &out); err != nil {
		return SyncResponse{}, err
	}
	return out, nil
}

// StreamURL returns the event stream endpoint for a run.
func (c *Client) StreamURL(runID string) string {
	return c.base.JoinPath("pipeline", "runs", runID, "stream").String()
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &APIError{Detail: fmt.Sprintf("encode request: %v", err)}
		}
	}

	res, err := c.send(ctx, method, path, token, payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		c.logger.Debug("api request failed", zap.String("path", path), zap.Error(err))
		return &APIError{Detail: "failed to reach API: " + err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return decodeError(res.StatusCode, http.StatusText(res.StatusCode), raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Status: res.StatusCode, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// send performs the request, retrying once on a transport error.
func (c *Client) send(ctx context.Context, method, path, token string, payload []byte) (*http.Response, error) {
	attempt := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, bytes.NewReader(payload))
		if err != nil {
			return nil, &APIError{Detail: fmt.Sprintf("build request: %v", err)}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return c.http.Do(req)
	}

	res, err := attempt()
	if err == nil {
		return res, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) || ctx.Err() != nil {
		return nil, err
	}

	c.logger.Debug("api transport error, retrying", zap.String("path", path), zap.Error(err))

	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, err
	case <-timer.C:
	}
	return attempt()
}
