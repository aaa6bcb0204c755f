package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maltedev/price-tracker/internal/ratelimit"
)

const maxBodySize = 8 << 20

// FetchError is returned for every failed fetch, after retries.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var errStatus = errors.New("unexpected status")

type Options struct {
	Timeout      time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	RetryStatus  []int
	UserAgent    string
	Limiter      ratelimit.RateLimiter
	HTTPClient   *http.Client
	ExtraHeaders http.Header
}

func DefaultOptions() Options {
	return Options{
		Timeout:     10 * time.Second,
		MaxAttempts: 5,
		BackoffBase: time.Second,
		RetryStatus: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

type Client struct {
	http     *http.Client
	opts     Options
	retry    map[int]bool
	limiter  ratelimit.RateLimiter
	requests atomic.Int64
	logger   *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaults.BackoffBase
	}
	if opts.RetryStatus == nil {
		opts.RetryStatus = defaults.RetryStatus
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}

	retry := make(map[int]bool, len(opts.RetryStatus))
	for _, code := range opts.RetryStatus {
		retry[code] = true
	}

	return &Client{
		http:    httpClient,
		opts:    opts,
		retry:   retry,
		limiter: limiter,
		logger:  logger.With("component", "fetch"),
	}
}

// Requests returns how many HTTP requests were dispatched so far.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Fetch GETs url and returns the body of a 2xx response. Network faults and
// retryable statuses are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	var (
		attempts   int
		lastStatus int
		body       []byte
	)

	operation := func() error {
		attempts++
		if err := c.limiter.Wait(ctx, url); err != nil {
			return backoff.Permanent(err)
		}

		status, data, err := c.do(ctx, url, headers)
		lastStatus = status
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if status < 200 || status >= 300 {
			err := fmt.Errorf("%w %d", errStatus, status)
			if c.retry[status] {
				return err
			}
			return backoff.Permanent(err)
		}
		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying fetch", "url", url, "attempt", attempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, c.policy(ctx), notify); err != nil {
		return nil, &FetchError{URL: url, StatusCode: lastStatus, Attempts: attempts, Err: err}
	}

	return body, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.opts.BackoffBase << uint(c.opts.MaxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
}

func (c *Client) do(ctx context.Context, url string, headers http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	for k, v := range c.opts.ExtraHeaders {
		req.Header[k] = v
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if req.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read body: %w", err)
	}

	return resp.StatusCode, data, nil
}

// BrowserHeaders are the request headers static extractors send.
func BrowserHeaders(userAgent string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("DNT", "1")
	return h
}
