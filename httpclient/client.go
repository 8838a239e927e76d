package httpclient

import (
	"context"
	"net/http"
	"sync"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Client owns the transport chain and the Executor shared by every
// RequestBuilder it creates. It is safe for concurrent use.
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("payment-service"),
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithCircuitBreaker(httpclient.DefaultBreakerConfig()),
//	)
//
//	resp, err := client.Request().
//	    Operation("CreatePayment").
//	    AsJSON().
//	    Retry(3, 200*time.Millisecond).
//	    Post(ctx, "/payments", payment)
type Client struct {
	transport Transport
	executor  *Executor
	cfg       *internalConfig
}

// New creates a Client issuing requests over net/http, or over the
// WithMockTransport mock when one is given.
//
// Attempts flow through, outermost first: rate limiter, circuit breaker,
// chaos injection, then the transport itself.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	var base Transport
	if cfg.MockTransport != nil {
		base = cfg.MockTransport
	} else {
		base = newHTTPTransport(cfg)
	}
	return newClient(base, cfg)
}

// NewWithTransport creates a Client over a custom Transport. The
// resilience options still wrap it.
func NewWithTransport(t Transport, opts ...Option) *Client {
	return newClient(t, newConfig(opts...))
}

func newClient(base Transport, cfg *internalConfig) *Client {
	t := newChaosTransport(base, cfg)
	t = newBreakerTransport(t, cfg)
	t = newRateLimitTransport(t, cfg)

	return &Client{
		transport: t,
		executor:  newExecutor(t, cfg),
		cfg:       cfg,
	}
}

// NewTransport wraps an http.RoundTripper with the client's tracing and
// metrics, for use with a plain *http.Client.
//
//	httpClient := &http.Client{
//	    Transport: httpclient.NewTransport(http.DefaultTransport,
//	        httpclient.WithServiceName("my-service")),
//	}
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return newOtelTransport(base, newConfig(opts...))
}

// Request returns a builder seeded with the client's base URL, default
// headers and retry policy.
func (c *Client) Request() *RequestBuilder {
	rb := newRequestBuilder(c)
	rb.baseURL = c.cfg.BaseURL
	for _, k := range sortedKeys(c.cfg.DefaultHeaders) {
		rb.headers.set(k, c.cfg.DefaultHeaders[k])
	}
	if err := c.cfg.DefaultRetry.validate(); err != nil {
		rb.err = err
	} else {
		rb.retry = c.cfg.DefaultRetry
	}
	return rb
}

// Transport returns the decorated transport the Executor issues to.
func (c *Client) Transport() Transport { return c.transport }

func (c *Client) Executor() *Executor { return c.executor }

// RateLimitStats reports the limiter state. ok is false without
// WithRateLimit.
func (c *Client) RateLimitStats() (stats RateLimiterStats, ok bool) {
	rl, ok := c.transport.(*rateLimitTransport)
	if !ok {
		return RateLimiterStats{}, false
	}
	return rl.Stats(), true
}

// BreakerState reports the circuit state. A distributed breaker reads
// it from the shared store.
func (c *Client) BreakerState() (gobreaker.State, error) {
	t := c.transport
	if rl, ok := t.(*rateLimitTransport); ok {
		t = rl.next
	}
	bt, ok := t.(*breakerTransport)
	if !ok {
		return gobreaker.StateClosed, ErrNoCircuitBreaker
	}
	return bt.state()
}

func (c *Client) dispatch(ctx context.Context, req *ResolvedRequest, policy RetryPolicy) (*Response, error) {
	if err := c.cfg.interceptRequest(ctx, req); err != nil {
		return nil, err
	}

	raw, err := c.executor.Execute(ctx, req, policy)
	if err != nil {
		return nil, err
	}

	if err := c.cfg.interceptResponse(ctx, req, raw); err != nil {
		return nil, err
	}
	return newResponse(raw, req, c.cfg.GenerateCurl), nil
}

var defaultClient = sync.OnceValue(func() *Client { return New() })

// NewRequest returns a builder backed by a shared default client.
//
//	resp, err := httpclient.NewRequest().
//	    AcceptJSON().
//	    Get(ctx, "https://api.example.com/users", url.Values{"page": {"1"}})
func NewRequest() *RequestBuilder {
	return defaultClient().Request()
}
