package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client provides methods to interact with the Galaxy REST API.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new Galaxy API client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "galaxy-client"),
	}
}

// URL returns the configured server base URL.
func (c *Client) URL() string {
	return strings.TrimRight(c.config.URL, "/")
}

// DatasetDownloadURL returns the URL a dataset's content can be fetched from.
func (c *Client) DatasetDownloadURL(datasetID string) string {
	return c.URL() + "/api/datasets/" + url.PathEscape(datasetID) + "/display?to_ext=data"
}

// call executes a REST call, retrying transient failures with exponential
// backoff. GET and DELETE are retried on any transient failure; other methods
// create resources and are retried only when the request never reached the
// server. When out is non-nil the response body is decoded into it.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	logger := c.logger.With("op", op, "method", method, "path", path)

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return WrapError(op, fmt.Errorf("marshaling request: %w", err))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return WrapError(op, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return WrapError(op, err)
		}

		respBody, err := c.doRequest(ctx, method, path, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || !IsRetryable(err) {
				return WrapError(op, err)
			}
			if !idempotent(method) && !requestNotSent(err) {
				logger.Warn("request may have been applied, not retrying", "error", err)
				return WrapError(op, err)
			}
			logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
			continue
		}

		if out != nil {
			if len(bytes.TrimSpace(respBody)) == 0 {
				return WrapError(op, ErrEmptyResponse)
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return WrapError(op, fmt.Errorf("unmarshaling response: %w", err))
			}
		}
		logger.Debug("request successful")
		return nil
	}

	return WrapError(op, fmt.Errorf("all retries exhausted: %w", lastErr))
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// doRequest performs a single HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.URL()+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("reading response: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// Get performs a GET against path (relative to the server root) and decodes
// the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, "GET "+path, http.MethodGet, path, nil, out)
}

// Post performs a POST of in to path and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, "POST "+path, http.MethodPost, path, in, out)
}

// Delete performs a DELETE against path with an optional JSON body.
func (c *Client) Delete(ctx context.Context, path string, in any) error {
	return c.call(ctx, "DELETE "+path, http.MethodDelete, path, in, nil)
}

// Version returns the server's version string. It doubles as a connectivity
// and credentials check.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v struct {
		Major string `json:"version_major"`
		Minor string `json:"version_minor"`
	}
	if err := c.call(ctx, "Version", http.MethodGet, "/api/version", nil, &v); err != nil {
		return "", err
	}
	if v.Minor == "" {
		return v.Major, nil
	}
	return v.Major + "." + v.Minor, nil
}
