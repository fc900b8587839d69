package platform

import (
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/cassiomorais/platformsync/pkg/retry"
	"github.com/rs/zerolog"
)

// Options carries the knobs every adapter passes through to its Client.
type Options struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	Retry            retry.Config
	Breaker          BreakerSettings
	HTTPClient       *http.Client
	Metrics          *observability.Metrics
	Logger           zerolog.Logger
}

type Option func(*Options)

// NewOptions applies opts over the defaults: 15s per call, three attempts,
// a nop logger.
func NewOptions(opts ...Option) Options {
	o := Options{
		Timeout:          DefaultTimeout,
		MaxResponseBytes: DefaultMaxResponseBytes,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
		Breaker: DefaultBreakerSettings(),
		Logger:  zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxResponseBytes <= 0 {
		o.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if o.Breaker.Threshold == 0 {
		o.Breaker = DefaultBreakerSettings()
	}
	return o
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithMaxResponseBytes(n int64) Option {
	return func(o *Options) { o.MaxResponseBytes = n }
}

func WithRetry(cfg retry.Config) Option {
	return func(o *Options) { o.Retry = cfg }
}

func WithBreaker(b BreakerSettings) Option {
	return func(o *Options) { o.Breaker = b }
}

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) { o.HTTPClient = hc }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
