// Package remote is the HTTP client for the central count server.
//
// Collections are fetched with GET (products are paginated), capture records
// are posted in per-session batches and photos are uploaded one multipart
// request at a time. Every call runs under its own timeout; any transport
// error or non-2xx response is returned as an error and never retried here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: server returned %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether the failure is worth retrying later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsUnauthorized reports whether err is a 401 or 403 from the server.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}

// TokenFunc returns the bearer token for the next request. An empty token
// sends no Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// Config holds client configuration
type Config struct {
	// BaseURL of the server, e.g. https://count.example.com
	BaseURL string

	// Timeout per request (default: 30s)
	Timeout time.Duration

	// PageSize for paginated collections (default: 500)
	PageSize int

	// Token supplies the bearer token
	Token TokenFunc

	// HTTPClient overrides the transport (default: a new http.Client)
	HTTPClient *http.Client

	Logger *zerolog.Logger
}

// Client talks to the count server.
type Client struct {
	base     *url.URL
	http     *http.Client
	timeout  time.Duration
	pageSize int
	token    TokenFunc
	logger   zerolog.Logger
}

// New creates a client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", config.BaseURL)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageSize <= 0 {
		config.PageSize = 500
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Client{
		base:     base,
		http:     config.HTTPClient,
		timeout:  config.Timeout,
		pageSize: config.PageSize,
		token:    config.Token,
		logger:   logger.With().Str("component", "remote").Logger(),
	}, nil
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and decodes a JSON response into out when out is not
// nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("failed to read auth token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, "", nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, "application/json", bytes.NewReader(payload), out)
}
