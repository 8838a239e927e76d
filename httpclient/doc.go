// Package httpclient provides a fluent HTTP request builder with retries,
// resilience decorators and OpenTelemetry instrumentation.
//
// # Features
//
//   - Immutable RequestBuilder: every call returns a new builder
//   - JSON, url-encoded form and multipart bodies, file uploads included
//   - Basic, digest and token authentication
//   - Retries of transport failures with pluggable backoff schedules
//   - Circuit breaker (local or Redis-backed), rate limiting, chaos
//   - OpenTelemetry spans and metrics, zerolog debug output
//   - Per-phase request timing and curl command generation
//
// # Quick Start
//
//	resp, err := httpclient.NewRequest().
//	    BaseURL("https://api.example.com").
//	    AcceptJSON().
//	    WithToken(token).
//	    Get(ctx, "/users", url.Values{"page": {"2"}})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.StatusCode(), resp.Get("0.name").String())
//
// # Builders
//
// A builder is a value: configure once, derive freely.
//
//	api := client.Request().BaseURL("https://api.example.com").AcceptJSON()
//	slow := api.Timeout(30 * time.Second)
//	fast := api.Timeout(500 * time.Millisecond)
//
// Headers set through WithHeaders overwrite; WithHeaderValues appends and
// the values are sent comma-joined. Transport options merged through
// WithOptions never overwrite a key that is already set.
//
// Invalid input is reported by Err and returned by the verbs, which then
// send nothing:
//
//	_, err := client.Request().Timeout(-time.Second).Get(ctx, "/x", nil)
//	httpclient.IsConfigurationError(err) // true
//
// # Bodies
//
// With AsJSON data is marshalled to JSON; with AsForm it is url-encoded,
// nested maps using key[sub] notation. Without a format, strings and
// byte slices are sent as they are, while maps and url.Values go out as
// multipart/form-data and may hold File or FileBytes uploads:
//
//	resp, err := client.Request().Post(ctx, "/upload", map[string]any{
//	    "title":  "report",
//	    "attach": httpclient.File("/tmp/report.pdf"),
//	})
//
// # Retries
//
// Only transport failures (connection refused, resets, per-attempt
// timeouts) are retried. A response with any status code, 5xx included,
// ends the loop and is returned. The wait between attempts comes from a
// backoff schedule:
//
//	client.Request().Retry(3, 100*time.Millisecond)
//	client.Request().RetryWithBackOff(5, func() backoff.BackOff {
//	    return httpclient.NewLinearBackOff(100*time.Millisecond, 100*time.Millisecond, time.Second)
//	})
//
// When all attempts fail the error is a *TransportError carrying the
// attempt count and the last cause. A body that cannot be encoded fails
// once with ErrBodyEncoding and is not retried. Cancelling the context
// stops the loop during a wait.
//
// # Resilience
//
// Client options add decorators around the transport:
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("inventory"),
//	    httpclient.WithCircuitBreaker(httpclient.DefaultBreakerConfig()),
//	    httpclient.WithRateLimit(httpclient.DefaultRateLimitConfig()),
//	)
//
// The breaker counts network errors and 5xx responses. While it is open,
// attempts fail fast with ErrCircuitOpen. Share the breaker state between
// replicas with NewRedisStore and DistributedBreakerConfig.
//
// # Observability
//
// Every verb produces an internal span named after the method and
// Operation, with one client span per attempt. Metrics follow the
// OpenTelemetry HTTP client conventions plus retry and breaker
// instruments. Providers default to the otel globals:
//
//	client := httpclient.New(
//	    httpclient.WithTracerProvider(tp),
//	    httpclient.WithMeterProvider(mp),
//	    httpclient.WithDebug(true),
//	    httpclient.WithGenerateCurl(true),
//	)
//
// Limiter and breaker state can be scraped by Prometheus through
// NewCollector.
//
// # Testing
//
// MockTransport stubs responses in memory:
//
//	mock := httpclient.NewMockTransport().StubPath("/users", 200, `[]`)
//	client := httpclient.New(httpclient.WithMockTransport(mock))
//
// WithSleepFunc replaces the wait between attempts so retry tests run
// instantly.
package httpclient
