package httpclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how many attempts the Executor makes and how long
// it waits between them. Only transport failures are retried; any HTTP
// status, including 4xx and 5xx, ends the loop.
//
// Example:
//
//	// three attempts, 100ms apart
//	policy := httpclient.RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond}
//
//	// three attempts with exponential waits
//	policy := httpclient.ExponentialRetryPolicy(3, 200*time.Millisecond, 2*time.Second)
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	// Must be at least 1.
	Attempts int

	// Delay is the constant wait between attempts when NewBackOff is nil.
	Delay time.Duration

	// NewBackOff, when set, supplies the wait schedule. A fresh BackOff is
	// created for every Execute call so stateful strategies are never
	// shared between concurrent requests. Returning backoff.Stop from
	// NextBackOff ends the loop early.
	NewBackOff func() backoff.BackOff
}

// DefaultRetryPolicy makes a single attempt with no delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// ExponentialRetryPolicy waits initial, then twice as long each time up to
// maxInterval, with ±50% jitter.
func ExponentialRetryPolicy(attempts int, initial, maxInterval time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts: attempts,
		NewBackOff: func() backoff.BackOff {
			return &backoff.ExponentialBackOff{
				InitialInterval:     initial,
				RandomizationFactor: DefaultJitterFactor,
				Multiplier:          2,
				MaxInterval:         maxInterval,
			}
		},
	}
}

// DefaultJitterFactor is the randomization applied by the jittered
// strategies when none is configured.
const DefaultJitterFactor = 0.5

func (p RetryPolicy) validate() error {
	if p.Attempts < 1 {
		return &ConfigurationError{Op: "Retry", Field: "times", Reason: "must be at least 1"}
	}
	if p.Delay < 0 {
		return &ConfigurationError{Op: "Retry", Field: "sleep", Reason: "must not be negative"}
	}
	return nil
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		if b := p.NewBackOff(); b != nil {
			return b
		}
	}
	return backoff.NewConstantBackOff(p.Delay)
}
