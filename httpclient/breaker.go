package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

var (
	// ErrCircuitOpen is returned without contacting the server while the
	// circuit breaker is open.
	ErrCircuitOpen = gobreaker.ErrOpenState

	errTooManyHalfOpen = gobreaker.ErrTooManyRequests

	// ErrNoCircuitBreaker is returned by Client.BreakerState when the
	// client was built without WithCircuitBreaker.
	ErrNoCircuitBreaker = errors.New("httpclient: circuit breaker not configured")

	// errSyntheticFailure marks a completed exchange as a breaker failure
	// (a 5xx status). It never reaches the caller.
	errSyntheticFailure = errors.New("httpclient: synthetic breaker failure")
)

// uncountedError carries an error the classifier does not count as a
// breaker failure through gobreaker.
type uncountedError struct{ err error }

func (e *uncountedError) Error() string { return e.err.Error() }

var _ Transport = (*breakerTransport)(nil)

// NewRedisStore creates a gobreaker store backed by Redis, so several
// processes calling the same service share one circuit.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(httpclient.WithCircuitBreaker(
//	    httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb)),
//	))
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// BreakerClassifier decides whether an attempt counts as a failure
// towards tripping the circuit.
type BreakerClassifier func(resp *RawResponse, err error) bool

// BreakerConfig configures the circuit breaker placed in front of the
// HTTP transport.
//
// The circuit is closed while requests flow, open while they are
// rejected with ErrCircuitOpen, and half-open while MaxRequests probes
// test whether the service recovered.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Zero means one.
	MaxRequests uint32

	// Interval clears the counts while closed. Zero never clears them.
	Interval time.Duration

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the number of requests needed before the
	// failure ratio is considered.
	FailureThreshold uint32

	// FailureRatio in [0, 1] that trips the circuit.
	FailureRatio float64

	// ConsecutiveFailures trips the circuit regardless of ratio. Zero
	// disables the rule.
	ConsecutiveFailures uint32

	// Store shares breaker state between processes. Nil keeps it local.
	Store gobreaker.SharedDataStore

	Classifier BreakerClassifier

	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns thresholds suited to a local breaker:
// trip after 5 consecutive failures, or when half of at least 20
// requests in a 10s window failed, and probe again after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig sharing its
// state through store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts network errors and 5xx responses as
// failures. A 429 is left to the caller's retry policy.
func DefaultBreakerClassifier(resp *RawResponse, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

// WithCircuitBreaker guards the transport with a circuit breaker named
// after WithServiceName.
func WithCircuitBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// circuitBreaker is the subset of gobreaker's local and distributed
// breakers used here.
type circuitBreaker interface {
	Execute(req func() (*RawResponse, error)) (*RawResponse, error)
}

type breakerTransport struct {
	breaker    circuitBreaker
	state      func() (gobreaker.State, error)
	next       Transport
	classifier BreakerClassifier
	cfg        *internalConfig
	name       string
}

func newBreakerTransport(next Transport, cfg *internalConfig) Transport {
	if cfg.BreakerConfig == nil {
		return next
	}
	bc := *cfg.BreakerConfig

	name := cfg.ServiceName
	if name == "" {
		name = "httpclient"
	}

	classifier := bc.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: readyToTrip(bc),
		IsSuccessful: func(err error) bool {
			var uncounted *uncountedError
			return err == nil || errors.As(err, &uncounted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			cfg.debug().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	local := gobreaker.NewCircuitBreaker[*RawResponse](st)
	var cb circuitBreaker = local
	state := func() (gobreaker.State, error) { return local.State(), nil }
	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[*RawResponse](bc.Store, st)
		if err != nil {
			// Keep local protection when the shared store is unusable.
			cfg.Logger.Warn().Err(err).Str("breaker", name).
				Msg("distributed circuit breaker unavailable, using local state")
		} else {
			cb = dcb
			state = dcb.State
		}
	}

	return &breakerTransport{
		breaker:    cb,
		state:      state,
		next:       next,
		classifier: classifier,
		cfg:        cfg,
		name:       name,
	}
}

func readyToTrip(bc BreakerConfig) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
			return true
		}
		if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
			return false
		}
		if bc.FailureRatio > 0 && counts.Requests > 0 {
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		}
		return false
	}
}

func (t *breakerTransport) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	resp, err := t.breaker.Execute(func() (*RawResponse, error) {
		resp, err := t.next.Issue(ctx, req)
		if t.classifier(resp, err) {
			if err != nil {
				return nil, err
			}
			return resp, errSyntheticFailure
		}
		if err != nil {
			return nil, &uncountedError{err: err}
		}
		return resp, nil
	})

	var uncounted *uncountedError
	if errors.As(err, &uncounted) {
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "success")
		return nil, uncounted.err
	}

	switch {
	case err == nil:
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "success")
		return resp, nil
	case errors.Is(err, errSyntheticFailure):
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "failure")
		return resp, nil
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, errTooManyHalfOpen):
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "rejected")
		return nil, err
	default:
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "failure")
		return nil, err
	}
}
