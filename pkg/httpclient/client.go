// Package httpclient provides the rate-limited, retrying HTTP client shared
// by every source adapter. Each adapter owns one Client instance so that its
// request spacing is independent of the other sources.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/paperharvest/backend/internal/observability"
)

// ErrBlocked signals that the source answered with a rate-limit or blocking
// response (HTTP 429 or equivalent). It is never retried; callers should stop
// hitting the source for the rest of the run.
var ErrBlocked = errors.New("blocked by source rate limiting")

// StatusError is returned for non-retryable, non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// maxBodyBytes caps how much of a response we ever read.
const maxBodyBytes = 10 << 20

// Config tunes one client instance.
type Config struct {
	// Source labels logs and metrics.
	Source string

	// RatePerSecond is the maximum request rate; requests are spaced at
	// least 1/RatePerSecond apart.
	RatePerSecond float64

	// Timeout bounds one HTTP round trip.
	Timeout time.Duration

	// MaxAttempts is the total number of tries per call, including the
	// first one.
	MaxAttempts int

	// BaseDelay and MaxDelay bound the exponential backoff between
	// attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	UserAgent    string
	APIKey       string
	APIKeyHeader string
}

func (c *Config) applyDefaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 4 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "paperharvest/1.0"
	}
}

// Stats is a snapshot of the client's cumulative counters. Counters only
// grow; they are never reset mid-run.
type Stats struct {
	Attempted uint64
	Succeeded uint64
	Failed    uint64
}

// Client wraps http.Client with request spacing and retries. Safe for
// concurrent use, though requests then share one rate budget.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config

	attempted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// New creates a client. Burst is fixed at 1 so consecutive calls are spaced
// a full interval apart.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cfg:     cfg,
	}
}

// Stats returns the cumulative call counters.
func (c *Client) Stats() Stats {
	return Stats{
		Attempted: c.attempted.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
}

// Get fetches url and returns the response body. It retries transient
// failures (network errors, 5xx) up to MaxAttempts with exponential backoff,
// returns ErrBlocked immediately on 429, and a StatusError for other non-2xx
// responses.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.Do(req)
}

// Do executes req with rate limiting and retries and returns the body of a
// 2xx response. The request body, if any, must have GetBody set to be
// retryable.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.APIKey != "" && c.cfg.APIKeyHeader != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(req.Context(), c.backoff(attempt)); err != nil {
				return nil, err
			}
			if err := resetBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		c.attempted.Add(1)
		body, err := c.attempt(req)
		if err == nil {
			c.succeeded.Add(1)
			observability.SourceRequests.WithLabelValues(c.cfg.Source, "success").Inc()
			return body, nil
		}

		c.failed.Add(1)
		if errors.Is(err, ErrBlocked) {
			observability.SourceRequests.WithLabelValues(c.cfg.Source, "blocked").Inc()
			return nil, err
		}
		observability.SourceRequests.WithLabelValues(c.cfg.Source, "failed").Inc()
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", c.cfg.Source, c.cfg.MaxAttempts, lastErr)
}

// attempt performs one round trip and classifies the outcome.
func (c *Client) attempt(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", c.cfg.Source, ErrBlocked)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
}

// retryable reports whether an attempt error is transient. Network errors
// and 5xx responses are; context cancellation and client errors are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return true
}

// backoff returns the delay before the given retry attempt (1-based),
// doubling from BaseDelay up to MaxDelay, plus up to half the delay again
// as jitter. Doubling stops at MaxDelay so large attempt counts cannot
// overflow the shift.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 1; i < attempt && delay < c.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/2)+1))
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resetBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
