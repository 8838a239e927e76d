package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestInterceptors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		interceptor RequestInterceptor
		builder     func(*RequestBuilder) *RequestBuilder
		header      string
		want        string
	}{
		{
			name:        "given api key interceptor, then header is set",
			interceptor: APIKeyInterceptor("X-API-Key", "secret"),
			header:      "X-API-Key",
			want:        "secret",
		},
		{
			name: "given bearer func interceptor, then token is fetched per request",
			interceptor: AuthBearerFuncInterceptor(func(context.Context) (string, error) {
				return "rotating", nil
			}),
			header: "Authorization",
			want:   "Bearer rotating",
		},
		{
			name:        "given user agent interceptor, then header is set",
			interceptor: UserAgentInterceptor("MyApp/1.0"),
			header:      "User-Agent",
			want:        "MyApp/1.0",
		},
		{
			name:        "given user agent on the builder, then interceptor keeps it",
			interceptor: UserAgentInterceptor("MyApp/1.0"),
			builder:     func(rb *RequestBuilder) *RequestBuilder { return rb.WithUserAgent("cli/2") },
			header:      "User-Agent",
			want:        "cli/2",
		},
		{
			name:        "given correlation id interceptor with generator, then header is set",
			interceptor: CorrelationIDInterceptor("X-Request-ID", func() string { return "req-1" }),
			header:      "X-Request-ID",
			want:        "req-1",
		},
		{
			name:        "given correlation id already set, then it is kept",
			interceptor: CorrelationIDInterceptor("X-Request-ID", func() string { return "req-1" }),
			builder: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithHeaders(map[string]string{"X-Request-ID": "upstream"})
			},
			header: "X-Request-ID",
			want:   "upstream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "")
			client := New(WithMockTransport(mock), WithRequestInterceptor(tt.interceptor))

			rb := client.Request()
			if tt.builder != nil {
				rb = tt.builder(rb)
			}
			_, err := rb.Get(context.Background(), "https://api.example.com/test", nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, mock.LastRequest().Header(tt.header))
		})
	}
}

func TestCorrelationIDInterceptor_DefaultsToUUID(t *testing.T) {
	t.Parallel()

	req := &ResolvedRequest{Method: http.MethodGet, URL: "https://x"}

	require.NoError(t, CorrelationIDInterceptor("X-Request-ID", nil)(context.Background(), req))

	_, err := uuid.Parse(req.Header("X-Request-ID"))
	assert.NoError(t, err)
}

func TestRequestInterceptors_RunInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) RequestInterceptor {
		return func(context.Context, *ResolvedRequest) error {
			order = append(order, name)
			return nil
		}
	}

	client := New(
		WithMockTransport(NewMockTransport().StubResponse(http.StatusOK, "")),
		WithRequestInterceptor(record("first"), record("second")),
		WithRequestInterceptor(record("third")),
	)

	_, err := client.Request().Get(context.Background(), "https://x", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRequestInterceptors_ErrorStopsChain(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("denied")
	var reached bool
	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client := New(
		WithMockTransport(mock),
		WithRequestInterceptor(
			func(context.Context, *ResolvedRequest) error { return errDenied },
			func(context.Context, *ResolvedRequest) error { reached = true; return nil },
		),
	)

	resp, err := client.Request().Get(context.Background(), "https://x", nil)

	assert.ErrorIs(t, err, errDenied)
	assert.Nil(t, resp)
	assert.False(t, reached)
	assert.Zero(t, mock.RequestCount())
}

func TestRequestInterceptors_ApplyToEveryAttempt(t *testing.T) {
	t.Parallel()

	var calls int
	mock := NewMockTransport().StubSequence(
		MockResponse{Err: errors.New("connection reset by peer")},
		MockResponse{StatusCode: http.StatusOK},
	)
	client := New(
		WithMockTransport(mock),
		WithSleepFunc(func(context.Context, time.Duration) error { return nil }),
		WithRequestInterceptor(func(_ context.Context, req *ResolvedRequest) error {
			calls++
			req.SetHeader("X-Signed", "yes")
			return nil
		}),
	)

	_, err := client.Request().Retry(2, 0).Get(context.Background(), "https://x", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	for _, req := range mock.Requests() {
		assert.Equal(t, "yes", req.Header("X-Signed"))
	}
}

func TestResponseInterceptors(t *testing.T) {
	t.Parallel()

	t.Run("given interceptor, then it sees the raw response", func(t *testing.T) {
		t.Parallel()

		var status int
		client := New(
			WithMockTransport(NewMockTransport().StubResponse(http.StatusAccepted, "")),
			WithResponseInterceptor(func(_ context.Context, _ *ResolvedRequest, resp *RawResponse) error {
				status = resp.StatusCode
				return nil
			}),
		)

		_, err := client.Request().Get(context.Background(), "https://x", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, status)
	})

	t.Run("given interceptor error, then it replaces the response", func(t *testing.T) {
		t.Parallel()

		errRejected := errors.New("rejected")
		client := New(
			WithMockTransport(NewMockTransport().StubResponse(http.StatusOK, "")),
			WithResponseInterceptor(func(context.Context, *ResolvedRequest, *RawResponse) error {
				return errRejected
			}),
		)

		resp, err := client.Request().Get(context.Background(), "https://x", nil)
		assert.ErrorIs(t, err, errRejected)
		assert.Nil(t, resp)
	})
}
