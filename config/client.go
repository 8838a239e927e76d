package config

import (
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kroma-labs/fluent-go/httpclient"
)

// RetryPolicy converts the retry settings.
func (r RetryConfig) RetryPolicy() httpclient.RetryPolicy {
	switch r.Strategy {
	case StrategyExponential:
		maxDelay := r.MaxDelay
		if maxDelay == 0 {
			maxDelay = backoff.DefaultMaxInterval
		}
		return httpclient.ExponentialRetryPolicy(r.Attempts, r.Delay, maxDelay)
	case StrategyLinear:
		return httpclient.RetryPolicy{
			Attempts: r.Attempts,
			NewBackOff: func() backoff.BackOff {
				return httpclient.NewLinearBackOff(r.Delay, r.Delay, r.MaxDelay)
			},
		}
	case StrategyDecorrelated:
		return httpclient.RetryPolicy{
			Attempts: r.Attempts,
			NewBackOff: func() backoff.BackOff {
				return httpclient.NewDecorrelatedJitterBackOff(r.Delay, r.MaxDelay)
			},
		}
	default:
		return httpclient.RetryPolicy{Attempts: r.Attempts, Delay: r.Delay}
	}
}

// ClientOptions converts the client-wide settings. When breaker.redis is
// set a Redis client is opened; release it with Close.
func (c *Config) ClientOptions() []httpclient.Option {
	opts := []httpclient.Option{
		httpclient.WithDebug(c.Debug),
		httpclient.WithGenerateCurl(c.GenerateCurl),
		httpclient.WithRetryPolicy(c.Retry.RetryPolicy()),
	}

	if c.BaseURL != "" {
		opts = append(opts, httpclient.WithBaseURL(c.BaseURL))
	}
	if c.ServiceName != "" {
		opts = append(opts, httpclient.WithServiceName(c.ServiceName))
	}

	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	if c.UserAgent != "" {
		headers["User-Agent"] = c.UserAgent
	}
	if len(headers) > 0 {
		opts = append(opts, httpclient.WithDefaultHeaders(headers))
	}

	if c.RateLimit.RPS > 0 {
		opts = append(opts, httpclient.WithRateLimit(httpclient.RateLimitConfig{
			RequestsPerSecond: c.RateLimit.RPS,
			Burst:             c.RateLimit.Burst,
			WaitOnLimit:       true,
		}))
	}

	if c.Breaker.Enabled {
		bc := httpclient.DefaultBreakerConfig()
		if c.Breaker.Redis != "" {
			if c.redis == nil {
				c.redis = redis.NewUniversalClient(&redis.UniversalOptions{
					Addrs: []string{c.Breaker.Redis},
				})
			}
			bc = httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(c.redis))
		}
		if c.Breaker.ConsecutiveFailures > 0 {
			bc.ConsecutiveFailures = c.Breaker.ConsecutiveFailures
		}
		if c.Breaker.Timeout > 0 {
			bc.Timeout = c.Breaker.Timeout
		}
		opts = append(opts, httpclient.WithCircuitBreaker(bc))
	}

	return opts
}

// Apply sets the per-request settings on rb.
func (c *Config) Apply(rb *httpclient.RequestBuilder) *httpclient.RequestBuilder {
	if c.Timeout > 0 {
		rb = rb.Timeout(c.Timeout)
	}
	if c.Insecure {
		rb = rb.WithoutVerifying()
	}
	return rb
}

// Close releases the Redis client opened by ClientOptions, if any.
func (c *Config) Close() error {
	if c.redis == nil {
		return nil
	}
	err := c.redis.Close()
	c.redis = nil
	return err
}
