// Package api provides the Echoleads REST API client. Requests flow through
// an explicit middleware pipeline (logging, bearer-token handling) in front
// of a plain http.Client, and every endpoint has typed request and response
// shapes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Config holds the client's connection settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://agents.echoleads.ai/api".
	BaseURL string

	// RequestTimeout bounds standard API calls.
	RequestTimeout time.Duration

	// RefreshTimeout bounds token-refresh-sensitive calls, which get a
	// longer budget than standard requests.
	RefreshTimeout time.Duration
}

// Client is an Echoleads API client.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	refreshClient *http.Client
	log           *slog.Logger
	middlewares   []Middleware
}

// NewClient creates a new API client. Middlewares are applied in the order
// given, outermost first.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    &http.Client{Timeout: requestTimeout},
		refreshClient: &http.Client{Timeout: refreshTimeout},
		log:           log.With("component", "api_client"),
	}
}

// Use appends middlewares to the request pipeline.
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// do builds and executes a request through the middleware pipeline and
// returns the response body. Non-2xx responses are returned as *Error.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	// GetBody lets the auth middleware replay the request after a 401.
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	pipeline := func(r *http.Request) (*http.Response, error) {
		return hc.Do(r)
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		pipeline = c.middlewares[i](pipeline)
	}

	resp, err := pipeline(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer drainAndClose(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	respBody, err := c.do(ctx, hc, http.MethodPost, path, "application/json", body)
	if err != nil {
		return err
	}
	return decode(path, respBody, out)
}

// postForm sends a multipart form, the encoding the auth endpoints require.
func (c *Client) postForm(ctx context.Context, hc *http.Client, path string, fields map[string]string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to encode form field %q: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize form body: %w", err)
	}

	respBody, err := c.do(ctx, hc, http.MethodPost, path, w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return err
	}
	return decode(path, respBody, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	respBody, err := c.do(ctx, c.httpClient, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	return decode(path, respBody, out)
}

func decode(path string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
