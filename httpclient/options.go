package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/fluent-go/httpclient"

	// DefaultConnectTimeout bounds connection establishment when no
	// TransportConfig overrides it.
	DefaultConnectTimeout = 150 * time.Second
)

// =============================================================================
// TransportConfig - net/http transport tuning
// =============================================================================

// TransportConfig tunes the net/http transport used by HTTPTransport.
// Start from DefaultTransportConfig and adjust fields as needed.
//
// Per-request time limits are not configured here; they are set on the
// builder with Timeout and apply to each attempt separately.
type TransportConfig struct {
	// ConnectTimeout bounds the TCP dial.
	//
	// Default: 150s
	ConnectTimeout time.Duration

	// KeepAlive is the TCP keep-alive period for open connections.
	//
	// Default: 30s
	KeepAlive time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers after the
	// request is written. Zero means no limit.
	ResponseHeaderTimeout time.Duration

	// IdleConnTimeout is how long an idle keep-alive connection is kept.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// MaxIdleConns and MaxIdleConnsPerHost size the connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int

	// MaxResponseBodyBytes caps how much of a response body is read.
	// Zero means unlimited.
	MaxResponseBodyBytes int64

	// MaxRedirects is the number of redirects followed. Zero disables
	// redirect following and returns the 3xx response as is.
	//
	// Default: 10
	MaxRedirects int

	DisableCompression bool
}

// DefaultTransportConfig returns settings for general-purpose use.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout:      DefaultConnectTimeout,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxRedirects:        10,
	}
}

// LowLatencyTransportConfig fails fast on unreachable hosts.
//
// Key differences from DefaultTransportConfig:
//   - 2s connect timeout
//   - 3s TLS handshake and response header timeouts
//   - redirects are not followed
func LowLatencyTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.TLSHandshakeTimeout = 3 * time.Second
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.MaxRedirects = 0
	return cfg
}

// internalConfig holds the resolved configuration shared by Client,
// Executor and HTTPTransport.
type internalConfig struct {
	transportConfig TransportConfig

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
	Propagators    propagation.TextMapPropagator

	// ServiceName is recorded as http.client.name on spans and metrics.
	ServiceName string

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	Logger       zerolog.Logger
	loggerSet    bool
	Debug        bool
	GenerateCurl bool

	BaseURL        string
	DefaultHeaders map[string]string
	DefaultRetry   RetryPolicy

	BreakerConfig   *BreakerConfig
	RateLimitConfig *RateLimitConfig
	ChaosConfig     *ChaosConfig

	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor

	MockTransport *MockTransport

	Sleep SleepFunc
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		transportConfig:      DefaultTransportConfig(),
		TracerProvider:       otel.GetTracerProvider(),
		MeterProvider:        otel.GetMeterProvider(),
		ProxyFromEnvironment: true,
		Logger:               zerolog.Nop(),
		DefaultRetry:         DefaultRetryPolicy(),
		Sleep:                sleepContext,
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Debug && !cfg.loggerSet {
		cfg.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Instruments are nil-safe; a failed registration only disables metrics.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// debug returns a debug event, or nil when debug logging is off. Methods
// on a nil *zerolog.Event are no-ops.
func (cfg *internalConfig) debug() *zerolog.Event {
	if !cfg.Debug {
		return nil
	}
	return cfg.Logger.Debug()
}

// buildTransport creates the net/http transport. insecure disables
// certificate and host name verification.
func (cfg *internalConfig) buildTransport(insecure bool) *http.Transport {
	tc := cfg.transportConfig

	dialer := &net.Dialer{
		Timeout:   tc.ConnectTimeout,
		KeepAlive: tc.KeepAlive,
	}

	var tlsCfg *tls.Config
	if cfg.TLSConfig != nil {
		tlsCfg = cfg.TLSConfig.Clone()
	}
	if insecure {
		if tlsCfg == nil {
			tlsCfg = &tls.Config{} //nolint:gosec // verification is disabled below on request
		}
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // requested via WithoutVerifying
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConnsPerHost,
		IdleConnTimeout:       tc.IdleConnTimeout,
		TLSHandshakeTimeout:   tc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: tc.ResponseHeaderTimeout,
		DisableCompression:    tc.DisableCompression,
		TLSClientConfig:       tlsCfg,
		ForceAttemptHTTP2:     true,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Option configures a Client, Executor or HTTPTransport.
type Option func(*internalConfig)

// WithTransportConfig replaces the net/http transport settings.
//
// Example:
//
//	cfg := httpclient.DefaultTransportConfig()
//	cfg.ConnectTimeout = 5 * time.Second
//	client := httpclient.New(httpclient.WithTransportConfig(cfg))
func WithTransportConfig(c TransportConfig) Option {
	return func(cfg *internalConfig) {
		cfg.transportConfig = c
	}
}

// WithServiceName sets the logical name of the downstream service.
// It is recorded as the http.client.name attribute and names the
// circuit breaker.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagator used to inject trace context into
// outgoing headers. Defaults to W3C TraceContext and Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithTLSConfig sets the base TLS configuration. WithoutVerifying on a
// request still disables verification for that request only.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes all requests through the given proxy.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
	}
}

// WithProxyFromEnvironment toggles HTTP_PROXY/HTTPS_PROXY support.
// Enabled by default.
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
		cfg.loggerSet = true
	}
}

// WithDebug enables debug events for dispatch, responses and retries.
// Without WithLogger, events go to stdout.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithGenerateCurl makes every Response carry an equivalent curl command.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = enabled
	}
}

// WithBaseURL seeds builders created by Client.Request with a base URL.
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeaders seeds builders created by Client.Request with headers.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		if cfg.DefaultHeaders == nil {
			cfg.DefaultHeaders = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.DefaultHeaders[k] = v
		}
	}
}

// WithRetryPolicy seeds builders created by Client.Request with a retry
// policy. Builders can still override it with Retry.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultRetry = p
	}
}

// WithSleepFunc replaces the wait between attempts. Useful for
// deterministic tests:
//
//	var waits []time.Duration
//	client := httpclient.NewWithTransport(mock, httpclient.WithSleepFunc(
//	    func(_ context.Context, d time.Duration) error {
//	        waits = append(waits, d)
//	        return nil
//	    },
//	))
func WithSleepFunc(fn SleepFunc) Option {
	return func(cfg *internalConfig) {
		if fn != nil {
			cfg.Sleep = fn
		}
	}
}
