package httpclient

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the client-side rate limit rejects an
// attempt.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

var _ Transport = (*rateLimitTransport)(nil)

// RateLimitConfig configures client-side rate limiting. Every attempt,
// retries included, consumes a token.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables
	// limiting.
	RequestsPerSecond float64

	// Burst is how many attempts may exceed the rate at once.
	Burst int

	// WaitOnLimit blocks for a token, bounded by the context. When false
	// an attempt without a token fails with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig allows 100 requests per second with bursts of
// 10, waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// WithRateLimit limits the rate at which the client issues attempts.
//
//	client := httpclient.New(httpclient.WithRateLimit(httpclient.RateLimitConfig{
//	    RequestsPerSecond: 5,
//	    Burst:             1,
//	}))
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimitConfig = &rl
	}
}

// RateLimiterStats is a snapshot of the limiter state.
type RateLimiterStats struct {
	Limit           float64
	Burst           int
	TokensAvailable float64
}

type rateLimitTransport struct {
	next    Transport
	limiter *rate.Limiter
	wait    bool
}

func newRateLimitTransport(next Transport, cfg *internalConfig) Transport {
	if cfg.RateLimitConfig == nil || cfg.RateLimitConfig.RequestsPerSecond <= 0 {
		return next
	}
	rl := cfg.RateLimitConfig

	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}

	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst),
		wait:    rl.WaitOnLimit,
	}
}

func (t *rateLimitTransport) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	if t.wait {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// The wait would outlast the context deadline.
			return nil, ErrRateLimited
		}
	} else if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	return t.next.Issue(ctx, req)
}

// Stats returns the limiter state.
func (t *rateLimitTransport) Stats() RateLimiterStats {
	return RateLimiterStats{
		Limit:           float64(t.limiter.Limit()),
		Burst:           t.limiter.Burst(),
		TokensAvailable: t.limiter.TokensAt(time.Now()),
	}
}
