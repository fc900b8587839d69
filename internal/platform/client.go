package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/cassiomorais/platformsync/pkg/retry"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultMaxResponseBytes caps the body read from a platform (10MB).
	DefaultMaxResponseBytes = 10 * 1024 * 1024
	DefaultTimeout          = 15 * time.Second

	maxErrorBody = 512
)

// BreakerSettings tunes the per-platform circuit breaker.
type BreakerSettings struct {
	// Threshold is the minimum request count in an interval before the
	// failure ratio is considered.
	Threshold uint32
	Timeout   time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Threshold: 10, Timeout: 30 * time.Second}
}

// ClientConfig identifies the remote API. Headers are copied at
// construction so later mutation of the caller's map has no effect.
type ClientConfig struct {
	Platform transaction.PlatformID
	BaseURL  string
	Headers  map[string]string
}

// Client performs authenticated JSON calls against one platform.
type Client struct {
	cfg     ClientConfig
	opts    Options
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics *observability.Metrics
}

func NewClient(cfg ClientConfig, opts Options) *Client {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	opts = opts.withDefaults()

	c := &Client{cfg: cfg, opts: opts, http: opts.HTTPClient, metrics: opts.Metrics}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	c.breaker = c.newBreaker()
	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	name := string(c.cfg.Platform)
	threshold := c.opts.Breaker.Threshold
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: threshold,
		Interval:    60 * time.Second,
		Timeout:     c.opts.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.6
		},
		// Client errors say nothing about the platform's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var upErr *domainerrors.UpstreamError
			return errors.As(err, &upErr) && !upErr.Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
}

// Platform returns the platform this client talks to.
func (c *Client) Platform() transaction.PlatformID {
	return c.cfg.Platform
}

// Get decodes the JSON response of GET path?query into out.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values, out any) error {
	body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.decode(op, body, out)
}

// Post sends in as JSON and decodes the response into out when out is non-nil.
func (c *Client) Post(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s %s: encode request: %w", c.cfg.Platform, op, err)
	}
	body, err := c.do(ctx, op, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return c.decode(op, body, out)
}

func (c *Client) decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &domainerrors.UpstreamError{
			Platform:   string(c.cfg.Platform),
			Op:         op,
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	cfg := c.opts.Retry
	cfg.RetryIf = isRetryable

	start := time.Now()
	body, err := retry.DoWithResult(ctx, cfg, func() ([]byte, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, op, method, path, query, payload)
		})
	})
	c.observe(op, start, err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domainerrors.UpstreamError{
			Platform:   string(c.cfg.Platform),
			Op:         op,
			StatusCode: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	return body, err
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	platform := string(c.cfg.Platform)
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "failure"
	}
	c.metrics.UpstreamRequests.WithLabelValues(platform, op, result).Inc()
	c.metrics.UpstreamDuration.WithLabelValues(platform, op).Observe(time.Since(start).Seconds())
	c.metrics.CircuitBreakerRequests.WithLabelValues(platform, result).Inc()
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", c.cfg.Platform, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, domainerrors.NewUpstreamTimeoutError(string(c.cfg.Platform), op, err)
		}
		return nil, &domainerrors.UpstreamError{Platform: string(c.cfg.Platform), Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxResponseBytes+1))
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, domainerrors.NewUpstreamTimeoutError(string(c.cfg.Platform), op, err)
		}
		return nil, &domainerrors.UpstreamError{Platform: string(c.cfg.Platform), Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domainerrors.NewUpstreamStatusError(string(c.cfg.Platform), op, resp.StatusCode, errorBody(body))
	}
	if int64(len(body)) > c.opts.MaxResponseBytes {
		return nil, &domainerrors.UpstreamError{
			Platform:   string(c.cfg.Platform),
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response exceeds %d bytes", c.opts.MaxResponseBytes),
		}
	}
	return body, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var upErr *domainerrors.UpstreamError
	return errors.As(err, &upErr) && upErr.Retryable()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorBody trims an upstream error body to maxErrorBody bytes on a rune
// boundary. Invalid UTF-8 is replaced so the excerpt is safe to log and
// return as JSON.
func errorBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}
