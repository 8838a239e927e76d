package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, rb *RequestBuilder) *ResolvedRequest {
	t.Helper()
	req, err := rb.Resolve(http.MethodGet, "/x", nil, nil)
	require.NoError(t, err)
	return req
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		path  string
		query url.Values
		want  string
	}{
		{
			name: "given base with trailing slash and path with leading slash, then joins with one slash",
			base: "https://api.x.com/",
			path: "/users",
			want: "https://api.x.com/users",
		},
		{
			name: "given base without slashes, then inserts one",
			base: "https://api.x.com",
			path: "users",
			want: "https://api.x.com/users",
		},
		{
			name: "given no base, then uses path verbatim",
			path: "https://other.com/a",
			want: "https://other.com/a",
		},
		{
			name:  "given query, then appends with question mark",
			base:  "https://api.x.com",
			path:  "/search",
			query: url.Values{"q": {"go lang"}, "page": {"2"}},
			want:  "https://api.x.com/search?page=2&q=go+lang",
		},
		{
			name:  "given path with query string, then appends with ampersand",
			path:  "https://api.x.com/search?q=go",
			query: url.Values{"page": {"2"}},
			want:  "https://api.x.com/search?q=go&page=2",
		},
		{
			name:  "given empty query, then URL is unchanged",
			path:  "https://api.x.com/search",
			query: url.Values{},
			want:  "https://api.x.com/search",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildURL(tt.base, tt.path, tt.query))
		})
	}
}

func TestRequestBuilder_Immutability(t *testing.T) {
	base := New().Request().BaseURL("https://api.x.com").Header("X-Base", "1")

	derived := base.
		Header("X-Derived", "1").
		Timeout(5*time.Second).
		AsJSON().
		Retry(3, time.Second)

	baseReq := resolve(t, base)
	derivedReq := resolve(t, derived)

	assert.Equal(t, []string{"X-Base: 1"}, baseReq.Headers)
	assert.Empty(t, baseReq.Options)
	assert.Equal(t, BodyFormatNone, base.bodyFormat)
	assert.Equal(t, 1, base.retry.Attempts)

	assert.Equal(t,
		[]string{"X-Base: 1", "X-Derived: 1", "Content-Type: application/json"},
		derivedReq.Headers)
	assert.Equal(t, 5*time.Second, derivedReq.Options[OptionTimeout])
	assert.Equal(t, BodyFormatJSON, derived.bodyFormat)
	assert.Equal(t, 3, derived.retry.Attempts)
}

func TestRequestBuilder_SiblingsDoNotShareState(t *testing.T) {
	base := New().Request().WithHeaderValues(map[string][]string{"X-Tag": {"a"}})

	left := base.WithHeaderValues(map[string][]string{"X-Tag": {"left"}})
	right := base.WithHeaderValues(map[string][]string{"X-Tag": {"right"}})

	assert.Equal(t, []string{"X-Tag: a"}, resolve(t, base).Headers)
	assert.Equal(t, []string{"X-Tag: a,left"}, resolve(t, left).Headers)
	assert.Equal(t, []string{"X-Tag: a,right"}, resolve(t, right).Headers)
}

func TestRequestBuilder_Headers(t *testing.T) {
	tests := []struct {
		name  string
		build func(rb *RequestBuilder) *RequestBuilder
		want  []string
	}{
		{
			name: "given WithHeaders twice, then scalar overwrites",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithHeaders(map[string]string{"X-Foo": "a"}).
					WithHeaders(map[string]string{"x-foo": "b"})
			},
			want: []string{"X-Foo: b"},
		},
		{
			name: "given WithHeaderValues twice, then lists accumulate",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithHeaderValues(map[string][]string{"X-Tag": {"a"}}).
					WithHeaderValues(map[string][]string{"X-Tag": {"b"}})
			},
			want: []string{"X-Tag: a,b"},
		},
		{
			name: "given WithToken with default type, then sets bearer",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithToken("abc")
			},
			want: []string{"Authorization: Bearer abc"},
		},
		{
			name: "given WithToken with custom type, then uses it",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithToken("abc", "Token")
			},
			want: []string{"Authorization: Token abc"},
		},
		{
			name: "given WithToken with empty type, then sends the bare token",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithToken("abc", "")
			},
			want: []string{"Authorization: abc"},
		},
		{
			name: "given accept and user agent helpers, then sets both headers",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.AcceptJSON().WithUserAgent("fluent/1.0")
			},
			want: []string{"Accept: application/json", "User-Agent: fluent/1.0"},
		},
		{
			name: "given AsForm, then sets form content type",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.AsForm()
			},
			want: []string{"Content-Type: application/x-www-form-urlencoded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := tt.build(New().Request())
			assert.Equal(t, tt.want, resolve(t, rb).Headers)
		})
	}
}

func TestRequestBuilder_Options(t *testing.T) {
	tests := []struct {
		name  string
		build func(rb *RequestBuilder) *RequestBuilder
		want  TransportOptions
	}{
		{
			name: "given basic auth, then records mode and credentials",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithBasicAuth("u", "p")
			},
			want: TransportOptions{OptionAuthMode: AuthBasic, OptionCredentials: "u:p"},
		},
		{
			name: "given digest after basic, then digest replaces basic",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithBasicAuth("u", "p").WithDigestAuth("d", "q")
			},
			want: TransportOptions{OptionAuthMode: AuthDigest, OptionCredentials: "d:q"},
		},
		{
			name: "given cookies, then serializes them in name order",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithCookies(map[string]string{"b": "2", "a": "1"}, "example.com")
			},
			want: TransportOptions{OptionCookie: "a=1; b=2"},
		},
		{
			name: "given a cookie list, then keeps its order",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithCookieList([]*http.Cookie{
					{Name: "session", Value: "s1"},
					{Name: "a", Value: "1"},
				}, "example.com")
			},
			want: TransportOptions{OptionCookie: "session=s1; a=1"},
		},
		{
			name: "given WithoutVerifying, then disables peer and host checks",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithoutVerifying()
			},
			want: TransportOptions{OptionVerifyPeer: false, OptionVerifyHost: false},
		},
		{
			name: "given WithOptions on a set key, then first write wins",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.Timeout(10 * time.Second).
					WithOptions(TransportOptions{OptionTimeout: 99, "custom": "x"})
			},
			want: TransportOptions{OptionTimeout: 10 * time.Second, "custom": "x"},
		},
		{
			name: "given WithOptions twice, then earlier value is kept",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithOptions(TransportOptions{"custom": "first"}).
					WithOptions(TransportOptions{"custom": "second"})
			},
			want: TransportOptions{"custom": "first"},
		},
		{
			name: "given EnableTrace, then sets trace option",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.EnableTrace()
			},
			want: TransportOptions{OptionTrace: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := tt.build(New().Request())
			assert.Equal(t, tt.want, resolve(t, rb).Options)
		})
	}
}

func TestRequestBuilder_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		build     func(rb *RequestBuilder) *RequestBuilder
		wantOp    string
		wantField string
	}{
		{
			name: "given negative timeout, then reports timeout",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.Timeout(-time.Second)
			},
			wantOp:    "Timeout",
			wantField: "timeout",
		},
		{
			name: "given zero retry times, then reports times",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.Retry(0, 0)
			},
			wantOp:    "Retry",
			wantField: "times",
		},
		{
			name: "given negative retry sleep, then reports sleep",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.Retry(2, -time.Millisecond)
			},
			wantOp:    "Retry",
			wantField: "sleep",
		},
		{
			name: "given zero attempts with backoff, then reports times",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.RetryWithBackOff(0, func() backoff.BackOff { return &backoff.ZeroBackOff{} })
			},
			wantOp:    "Retry",
			wantField: "times",
		},
		{
			name: "given unknown body format, then reports format",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.BodyFormat("xml")
			},
			wantOp:    "BodyFormat",
			wantField: "format",
		},
		{
			name: "given a nameless cookie in a list, then reports cookies",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.WithCookieList([]*http.Cookie{{Name: "a", Value: "1"}, {Value: "x"}}, "")
			},
			wantOp:    "WithCookieList",
			wantField: "cookies",
		},
		{
			name: "given error followed by valid calls, then first error is kept",
			build: func(rb *RequestBuilder) *RequestBuilder {
				return rb.Timeout(-time.Second).Retry(0, 0).Header("X-Ok", "1")
			},
			wantOp:    "Timeout",
			wantField: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			rb := tt.build(New(WithMockTransport(mock)).Request())

			var cfgErr *ConfigurationError
			require.True(t, errors.As(rb.Err(), &cfgErr))
			assert.Equal(t, tt.wantOp, cfgErr.Op)
			assert.Equal(t, tt.wantField, cfgErr.Field)

			resp, err := rb.Get(context.Background(), "https://api.x.com/a", nil)
			assert.Nil(t, resp)
			assert.True(t, IsConfigurationError(err))
			assert.Zero(t, mock.RequestCount())
		})
	}
}

func TestRequestBuilder_ValidCallsHaveNoError(t *testing.T) {
	rb := New().Request().Timeout(0).Retry(1, 0).BodyFormat(BodyFormatForm)
	assert.NoError(t, rb.Err())
}

func TestRequestBuilder_Verbs(t *testing.T) {
	tests := []struct {
		name       string
		send       func(ctx context.Context, rb *RequestBuilder) (*Response, error)
		wantMethod string
		wantURL    string
		wantBody   any
	}{
		{
			name: "given Get with query, then appends query",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.Get(ctx, "/users", url.Values{"page": {"2"}})
			},
			wantMethod: http.MethodGet,
			wantURL:    "https://api.x.com/users?page=2",
		},
		{
			name: "given Head, then sends HEAD without body",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.Head(ctx, "/users")
			},
			wantMethod: http.MethodHead,
			wantURL:    "https://api.x.com/users",
		},
		{
			name: "given Options, then sends OPTIONS",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.Options(ctx, "/users")
			},
			wantMethod: http.MethodOptions,
			wantURL:    "https://api.x.com/users",
		},
		{
			name: "given Post with json format, then encodes JSON",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.AsJSON().Post(ctx, "/users", map[string]any{"name": "ann"})
			},
			wantMethod: http.MethodPost,
			wantURL:    "https://api.x.com/users",
			wantBody:   []byte(`{"name":"ann"}`),
		},
		{
			name: "given Put with form format, then url-encodes",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.AsForm().Put(ctx, "/users/1", map[string]any{"name": "ann"})
			},
			wantMethod: http.MethodPut,
			wantURL:    "https://api.x.com/users/1",
			wantBody:   []byte("name=ann"),
		},
		{
			name: "given Patch with raw bytes, then sends them as is",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.Patch(ctx, "/users/1", []byte("raw"))
			},
			wantMethod: http.MethodPatch,
			wantURL:    "https://api.x.com/users/1",
			wantBody:   []byte("raw"),
		},
		{
			name: "given Delete with nil data, then sends no body",
			send: func(ctx context.Context, rb *RequestBuilder) (*Response, error) {
				return rb.Delete(ctx, "/users/1", nil)
			},
			wantMethod: http.MethodDelete,
			wantURL:    "https://api.x.com/users/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			rb := New(WithMockTransport(mock)).Request().BaseURL("https://api.x.com/")

			resp, err := tt.send(context.Background(), rb)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode())

			req := mock.LastRequest()
			require.NotNil(t, req)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, tt.wantURL, req.URL)
			assert.Equal(t, tt.wantBody, req.Body)
		})
	}
}

func TestRequestBuilder_Operation(t *testing.T) {
	req, err := New().Request().Operation("ListUsers").Resolve("post", "https://x", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "ListUsers", req.Operation)
	assert.Equal(t, http.MethodPost, req.Method)
}

func TestRequestBuilder_ResolveIsDetached(t *testing.T) {
	rb := New().Request().Header("X-A", "1").WithOptions(TransportOptions{"k": "v"})

	req := resolve(t, rb)
	req.SetHeader("X-A", "changed")
	req.Options["k"] = "changed"

	again := resolve(t, rb)
	assert.Equal(t, []string{"X-A: 1"}, again.Headers)
	assert.Equal(t, "v", again.Options["k"])
}

func TestRequestBuilder_ZeroValue(t *testing.T) {
	var rb RequestBuilder
	req, err := rb.Header("X-A", "1").Resolve(http.MethodGet, "https://x", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"X-A: 1"}, req.Headers)
}
