// Package fetch provides an HTTP-backed registry source with retry,
// circuit breaking, DNS caching, and consistent per-resolution
// snapshots.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/envforge/resolve/internal/core"
)

// ErrRateLimited is returned when the registry rate limits requests. It
// wraps core.ErrUnavailable: a rate limit that survives the retry budget
// is still a transient registry condition the caller may retry with
// backoff, never a domain answer.
var ErrRateLimited = fmt.Errorf("rate limited by registry: %w", core.ErrUnavailable)

// Client is an HTTP client for registry metadata with retry logic.
type Client struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	authFn     func(url string) (headerName, headerValue string)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Client) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Client) {
		f.userAgent = ua
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Client) {
		f.client.Timeout = d
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(f *Client) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Client) {
		f.baseDelay = d
	}
}

// WithAuthFunc sets a function that returns auth headers for a given URL.
// Return empty strings to skip authentication for that URL.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(f *Client) {
		f.authFn = fn
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	// DNS cache with 5 minute refresh interval
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	c := &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP")
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "envforge-resolve/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches url and decodes the response body into out. Rate
// limits and server errors are retried with exponential backoff and
// jitter; not-found and client errors are surfaced immediately.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with 10% jitter to prevent thundering herd
			delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(float64(delay) * (rand.Float64() * 0.1))
			delay += jitter

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doGetJSON(ctx, url, out)
		if err == nil {
			return nil
		}

		lastErr = err

		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, core.ErrUnavailable) {
			continue
		}
		return err
	}

	return lastErr
}

func (c *Client) doGetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if c.authFn != nil {
		if name, value := c.authFn(url); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", url, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return core.ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited

	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d from %s", core.ErrUnavailable, resp.StatusCode, url)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
