package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
)

const userAgent = "forest-loss-dashboard/1.0 (github.com/Zachdehooge/forest-loss-dashboard)"

// Observer receives one call per Earth Engine request. It is how the
// metrics package counts upstream traffic without this package importing it.
type Observer func(method string, err error, elapsed time.Duration)

// Options configures a Client.
type Options struct {
	BaseURL           string
	Project           string
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
	Observe           Observer
}

// Client talks to the Earth Engine REST API on behalf of the whole process.
// It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	project string
	limiter *rate.Limiter
	logger  *slog.Logger
	observe Observer
}

// NewClient wraps an already-authenticated HTTP client.
func NewClient(httpClient *http.Client, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		project: opts.Project,
		limiter: rate.NewLimiter(limit, burst),
		logger:  opts.Logger,
		observe: opts.Observe,
	}
}

// Project returns the Cloud project requests are billed to.
func (c *Client) Project() string {
	return c.project
}

// Close releases pooled connections. The client must not be used afterwards.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// APIError is the error body Earth Engine returns on non-200 responses.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("earth engine returned HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("earth engine returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) projectURL(method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, c.project, method)
}

// post sends body to a project-scoped method and decodes the response into out.
func (c *Client) post(ctx context.Context, method string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(method, err, time.Since(start))
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.ServiceError("Earth Engine request was cancelled", err, map[string]any{"method": method})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Internal("failed to encode earth engine request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.projectURL(method), bytes.NewReader(payload))
	if err != nil {
		return apperrors.Internal("failed to build earth engine request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req, method)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.ServiceError("Earth Engine returned a response that could not be read", err, map[string]any{"method": method})
	}
	return nil
}

// do executes req and returns the body of a 200 response.
func (c *Client) do(req *http.Request, method string) ([]byte, error) {
	c.logger.Debug("earth engine request", "method", method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ServiceError("Earth Engine could not be reached", err, map[string]any{"method": method})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ServiceError("Earth Engine response was interrupted", err, map[string]any{"method": method})
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp.StatusCode, body)
		return nil, apperrors.ServiceError(userFacing(apiErr), apiErr, map[string]any{
			"method": method,
			"status": resp.StatusCode,
		})
	}
	return body, nil
}

func decodeAPIError(code int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: code}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
		return apiErr
	}

	snip := body
	if len(snip) > 200 {
		snip = snip[:200]
	}
	apiErr.Message = strings.TrimSpace(string(snip))
	return apiErr
}

func userFacing(e *APIError) string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED":
		return "Earth Engine quota exceeded; try again in a moment: " + e.Message
	case e.StatusCode == http.StatusBadRequest:
		return "Earth Engine rejected the computation: " + e.Message
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "Earth Engine denied access: " + e.Message
	default:
		return "Earth Engine request failed: " + e.Message
	}
}

// IsAPIStatus reports whether err carries an Earth Engine response with the
// given HTTP status.
func IsAPIStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
