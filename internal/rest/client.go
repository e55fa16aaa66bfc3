// Package rest implements the HTTP transport used by the CoinCap client.
//
// A Client issues one GET per call against a fixed base URL and decodes the JSON
// body into the caller's value. It never retries and never caches. Every failure
// is classified as a transport, status or decode error so callers can tell them
// apart with errors.Is.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds a single request round trip.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response body is kept in StatusError.
	maxErrorBody = 512

	// maxResponseBody caps how much of a response body is read.
	maxResponseBody = 32 << 20 // 32MB
)

var (
	// ErrTransport wraps network failures and timeouts.
	ErrTransport = errors.New("transport error")

	// ErrStatus is matched by every StatusError.
	ErrStatus = errors.New("unexpected response status")

	// ErrDecode wraps malformed or unexpected response bodies.
	ErrDecode = errors.New("decode error")

	// ErrInvalidBaseURL indicates the configured base URL cannot be used.
	ErrInvalidBaseURL = errors.New("invalid base URL")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // Leading part of the response body
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is makes errors.Is(err, ErrStatus) true for any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a Client. Zero values select defaults.
type Options struct {
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient executes requests. Defaults to an *http.Client.
	HTTPClient Doer

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// Client performs GET requests against a fixed base URL.
type Client struct {
	base      *url.URL
	http      Doer
	timeout   time.Duration
	userAgent string
}

// NewClient returns a Client bound to baseURL, which must be an absolute http or https URL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidBaseURL, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		base:      u,
		http:      opts.HTTPClient,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}, nil
}

// BaseURL returns the normalised base URL (always ending in '/').
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// URL builds the absolute request URL for the given path segments and query.
// Each segment is escaped on its own so a symbol cannot alter the path.
func (c *Client) URL(segments []string, query url.Values) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}

	u := *c.base
	u.Path = c.base.Path + strings.Join(segments, "/")
	u.RawPath = c.base.EscapedPath() + strings.Join(escaped, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Get issues a single GET for the given path segments and decodes the JSON
// response body into out.
func (c *Client) Get(ctx context.Context, segments []string, query url.Values, out any) error {
	target := c.URL(segments, query)

	logger := log.With().
		Str("component", "rest").
		Str("method", http.MethodGet).
		Str("url", target).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("request failed")
		return fmt.Errorf("%w: GET %s: %w", ErrTransport, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		logger.Debug().Err(err).Int("status", resp.StatusCode).Msg("reading body failed")
		return fmt.Errorf("%w: reading body of GET %s: %w", ErrTransport, target, err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       truncate(body, maxErrorBody),
		}
	}

	return decode(body, out)
}

// decode unmarshals body into out. An empty body or a JSON null is an error:
// every endpoint returns either an object or an array.
func decode(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty response body", ErrDecode)
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: null response body", ErrDecode)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func truncate(body []byte, limit int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
