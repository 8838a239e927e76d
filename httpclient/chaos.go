package httpclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// ErrChaosInjected is the cause of every failure injected by WithChaos.
var ErrChaosInjected = errors.New("chaos: simulated network error")

var _ Transport = (*chaosTransport)(nil)

// ChaosConfig injects latency and failures in front of the HTTP
// transport, to exercise retry and circuit breaker settings outside
// production.
//
//	client := httpclient.New(httpclient.WithChaos(httpclient.ChaosConfig{
//	    Latency:   200 * time.Millisecond,
//	    ErrorRate: 0.1,
//	}))
type ChaosConfig struct {
	// Latency is added to every attempt.
	Latency time.Duration

	// LatencyJitter adds a random [0, LatencyJitter) on top of Latency.
	LatencyJitter time.Duration

	// ErrorRate in [0, 1] fails attempts with a dial error wrapping
	// ErrChaosInjected.
	ErrorRate float64

	// TimeoutRate in [0, 1] stalls attempts until the request timeout
	// or the context ends.
	TimeoutRate float64

	// StallTimeout bounds a stall for requests without OptionTimeout.
	// Zero means DefaultConnectTimeout.
	StallTimeout time.Duration
}

// Delay returns Latency plus a random jitter.
func (c ChaosConfig) Delay() time.Duration {
	delay := c.Latency
	if c.LatencyJitter > 0 {
		delay += rand.N(c.LatencyJitter) //nolint:gosec
	}
	return delay
}

func (c ChaosConfig) roll(rate float64) bool {
	return rate > 0 && rand.Float64() < rate //nolint:gosec
}

// WithChaos enables fault injection. Never enable it in production.
func WithChaos(cc ChaosConfig) Option {
	return func(cfg *internalConfig) {
		cfg.ChaosConfig = &cc
	}
}

type chaosTransport struct {
	next   Transport
	config ChaosConfig
}

func newChaosTransport(next Transport, cfg *internalConfig) Transport {
	if cfg.ChaosConfig == nil {
		return next
	}
	return &chaosTransport{next: next, config: *cfg.ChaosConfig}
}

func (t *chaosTransport) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	if t.config.roll(t.config.TimeoutRate) {
		timeout, ok := req.Options.Duration(OptionTimeout)
		if !ok || timeout <= 0 {
			timeout = t.config.StallTimeout
		}
		if timeout <= 0 {
			timeout = DefaultConnectTimeout
		}
		stallCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-stallCtx.Done()
		return nil, stallCtx.Err()
	}

	if t.config.roll(t.config.ErrorRate) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if delay := t.config.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return t.next.Issue(ctx, req)
}
