package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDialRefused = &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

func tripAfter(n uint32) BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: n,
	}
}

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(20), cfg.FailureThreshold)
	assert.InEpsilon(t, 0.5, cfg.FailureRatio, 0.001)
	assert.Equal(t, uint32(5), cfg.ConsecutiveFailures)
	assert.NotNil(t, cfg.Classifier)
	assert.Nil(t, cfg.Store)
}

func TestDistributedBreakerConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb)
	cfg := DistributedBreakerConfig(store)

	assert.Equal(t, store, cfg.Store)
	assert.Equal(t, uint32(5), cfg.ConsecutiveFailures)
}

func TestDefaultBreakerClassifier(t *testing.T) {
	tests := []struct {
		name string
		resp *RawResponse
		err  error
		want bool
	}{
		{name: "given 200, then not a failure", resp: &RawResponse{StatusCode: 200}, want: false},
		{name: "given 429, then not a failure", resp: &RawResponse{StatusCode: 429}, want: false},
		{name: "given 500, then failure", resp: &RawResponse{StatusCode: 500}, want: true},
		{name: "given connection refused, then failure", err: errDialRefused, want: true},
		{name: "given cancellation, then not a failure", err: context.Canceled, want: false},
		{name: "given body encoding error, then not a failure", err: ErrBodyEncoding, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultBreakerClassifier(tt.resp, tt.err))
		})
	}
}

func TestReadyToTrip(t *testing.T) {
	tests := []struct {
		name   string
		cfg    BreakerConfig
		counts gobreaker.Counts
		want   bool
	}{
		{
			name:   "given consecutive failures reached, then trips",
			cfg:    BreakerConfig{ConsecutiveFailures: 3, FailureThreshold: 100},
			counts: gobreaker.Counts{Requests: 3, ConsecutiveFailures: 3, TotalFailures: 3},
			want:   true,
		},
		{
			name:   "given too few requests for the ratio, then stays closed",
			cfg:    BreakerConfig{FailureThreshold: 10, FailureRatio: 0.5},
			counts: gobreaker.Counts{Requests: 4, TotalFailures: 4},
			want:   false,
		},
		{
			name:   "given ratio reached after threshold, then trips",
			cfg:    BreakerConfig{FailureThreshold: 10, FailureRatio: 0.5},
			counts: gobreaker.Counts{Requests: 10, TotalFailures: 5},
			want:   true,
		},
		{
			name:   "given ratio below limit, then stays closed",
			cfg:    BreakerConfig{FailureThreshold: 10, FailureRatio: 0.5},
			counts: gobreaker.Counts{Requests: 10, TotalFailures: 4},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readyToTrip(tt.cfg)(tt.counts))
		})
	}
}

func TestBreakerTransport_Issue(t *testing.T) {
	tests := []struct {
		name      string
		mock      func() *MockTransport
		calls     int
		wantCalls int
		wantLast  func(t *testing.T, resp *RawResponse, err error)
	}{
		{
			name:      "given network failures, then opens and rejects without calling through",
			mock:      func() *MockTransport { return NewMockTransport().StubError(errDialRefused) },
			calls:     3,
			wantCalls: 2,
			wantLast: func(t *testing.T, resp *RawResponse, err error) {
				assert.Nil(t, resp)
				assert.ErrorIs(t, err, ErrCircuitOpen)
				assert.Equal(t, ErrorKindCircuitOpen, ClassifyError(err))
			},
		},
		{
			name:      "given server errors, then returns them as responses until open",
			mock:      func() *MockTransport { return NewMockTransport().StubResponse(http.StatusBadGateway, "down") },
			calls:     3,
			wantCalls: 2,
			wantLast: func(t *testing.T, _ *RawResponse, err error) {
				assert.ErrorIs(t, err, ErrCircuitOpen)
			},
		},
		{
			name: "given server error response, then caller still receives it",
			mock: func() *MockTransport {
				return NewMockTransport().StubResponse(http.StatusInternalServerError, "boom")
			},
			calls:     1,
			wantCalls: 1,
			wantLast: func(t *testing.T, resp *RawResponse, err error) {
				require.NoError(t, err)
				assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			},
		},
		{
			name:      "given errors the classifier ignores, then never opens",
			mock:      func() *MockTransport { return NewMockTransport().StubError(errors.New("bad input")) },
			calls:     4,
			wantCalls: 4,
			wantLast: func(t *testing.T, _ *RawResponse, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrCircuitOpen)
				assert.Equal(t, "bad input", err.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := tt.mock()
			tr := newBreakerTransport(mock, newConfig(
				WithServiceName("inventory"),
				WithCircuitBreaker(tripAfter(2)),
			))

			var (
				resp *RawResponse
				err  error
			)
			for range tt.calls {
				resp, err = tr.Issue(context.Background(), &ResolvedRequest{Method: http.MethodGet, URL: "https://x/a"})
			}

			assert.Equal(t, tt.wantCalls, mock.RequestCount())
			tt.wantLast(t, resp, err)
		})
	}
}

func TestBreakerTransport_Disabled(t *testing.T) {
	mock := NewMockTransport()
	assert.Same(t, Transport(mock), newBreakerTransport(mock, newConfig()))
}

func TestBreakerTransport_OnStateChange(t *testing.T) {
	var transitions []gobreaker.State

	bc := tripAfter(1)
	bc.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}

	tr := newBreakerTransport(NewMockTransport().StubError(errDialRefused), newConfig(WithCircuitBreaker(bc)))
	_, _ = tr.Issue(context.Background(), &ResolvedRequest{Method: http.MethodGet, URL: "https://x"})

	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestBreakerTransport_Distributed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bc := tripAfter(2)
	bc.Store = NewRedisStore(rdb)

	failing := NewMockTransport().StubError(errDialRefused)
	healthy := NewMockTransport().StubResponse(http.StatusOK, "ok")

	replicaA := newBreakerTransport(failing, newConfig(WithServiceName("payments"), WithCircuitBreaker(bc)))
	replicaB := newBreakerTransport(healthy, newConfig(WithServiceName("payments"), WithCircuitBreaker(bc)))

	req := &ResolvedRequest{Method: http.MethodGet, URL: "https://x"}
	for range 2 {
		_, _ = replicaA.Issue(context.Background(), req)
	}

	_, err := replicaB.Issue(context.Background(), req)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, healthy.RequestCount())
}
