// Package httpclient provides the retrying HTTP client used to reach the
// completion service. Rate-limited and transiently failing requests are
// retried with exponential backoff, honoring Retry-After when present.
package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Transport retries retryable responses before handing them to the caller.
// Requests without a replayable body are never retried.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures the transport.
type Option func(*Transport)

// WithBase sets the underlying round tripper.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithMaxRetries caps retry attempts per request.
func WithMaxRetries(n int) Option {
	return func(t *Transport) { t.maxRetries = n }
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(t *Transport) { t.baseDelay = d }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		base:       http.DefaultTransport,
		maxRetries: 3,
		baseDelay:  time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// New returns an http.Client with the retrying transport installed.
func New(timeout time.Duration, opts ...Option) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(opts...),
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return resp, fmt.Errorf("failed to replay request body: %w", bodyErr)
			}
			req.Body = body
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if !retryable(resp.StatusCode) || attempt >= t.maxRetries {
			return resp, nil
		}
		if req.GetBody == nil {
			return resp, nil
		}

		delay := t.delay(resp, attempt)
		t.logger.Warn("retrying completion request",
			"status", resp.StatusCode, "delay", delay, "attempt", attempt+1, "max", t.maxRetries)

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// delay picks the wait before the next attempt. A parseable Retry-After
// header wins; otherwise the base delay doubles per attempt.
func (t *Transport) delay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(ra); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	return t.baseDelay << attempt
}
