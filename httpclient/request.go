package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RequestBuilder accumulates request configuration through chained calls.
//
// Every method returns a new builder and leaves the receiver untouched, so
// a partially configured builder can be kept and reused as a template, and
// shared between goroutines:
//
//	api := client.Request().
//	    BaseURL("https://api.example.com").
//	    AcceptJSON().
//	    WithToken(token)
//
//	users, err := api.Get(ctx, "/users", url.Values{"page": {"2"}})
//	created, err := api.AsJSON().Post(ctx, "/users", newUser)
//
// Invalid input (a negative timeout, fewer than one attempt, an unknown
// body format) is recorded as a *ConfigurationError by the method that
// received it. Err reports it immediately and every verb returns it
// without sending anything.
type RequestBuilder struct {
	client     *Client
	operation  string
	baseURL    string
	bodyFormat BodyFormat
	headers    headerSet
	options    TransportOptions
	retry      RetryPolicy
	err        error
}

func newRequestBuilder(c *Client) *RequestBuilder {
	return &RequestBuilder{
		client:  c,
		headers: newHeaderSet(),
		options: make(TransportOptions),
		retry:   DefaultRetryPolicy(),
	}
}

func (rb *RequestBuilder) clone() *RequestBuilder {
	out := *rb
	out.headers = rb.headers.clone()
	out.options = rb.options.clone()
	return &out
}

// with returns a modified copy. Once a builder carries an error, derived
// builders keep that first error and ignore further changes.
func (rb *RequestBuilder) with(fn func(*RequestBuilder)) *RequestBuilder {
	out := rb.clone()
	if out.err == nil {
		fn(out)
	}
	return out
}

func (rb *RequestBuilder) fail(op, field, reason string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		out.err = &ConfigurationError{Op: op, Field: field, Reason: reason}
	})
}

// Err returns the configuration error recorded on this builder, if any.
func (rb *RequestBuilder) Err() error {
	return rb.err
}

// Operation names the request in spans and debug logs.
func (rb *RequestBuilder) Operation(name string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) { out.operation = name })
}

// BaseURL sets the prefix joined to every verb's URL. Exactly one "/"
// separates the two parts.
func (rb *RequestBuilder) BaseURL(baseURL string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) { out.baseURL = baseURL })
}

// BodyFormat selects how verb data is encoded. Only BodyFormatJSON and
// BodyFormatForm are accepted.
func (rb *RequestBuilder) BodyFormat(format BodyFormat) *RequestBuilder {
	if format != BodyFormatJSON && format != BodyFormatForm {
		return rb.fail("BodyFormat", "format", fmt.Sprintf("unsupported body format %q", format))
	}
	return rb.with(func(out *RequestBuilder) { out.bodyFormat = format })
}

// ContentType sets the Content-Type header.
func (rb *RequestBuilder) ContentType(contentType string) *RequestBuilder {
	return rb.Header("Content-Type", contentType)
}

// Header sets a single header, replacing any previous value.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) { out.headers.set(key, value) })
}

// WithHeaders sets headers, replacing previous values of the same names.
// Names are case-insensitive.
func (rb *RequestBuilder) WithHeaders(headers map[string]string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		for _, k := range sortedKeys(headers) {
			out.headers.set(k, headers[k])
		}
	})
}

// WithHeaderValues appends list values to headers. Repeated names are
// sent as one comma-joined line:
//
//	rb.WithHeaderValues(map[string][]string{"X-Tag": {"a"}}).
//	    WithHeaderValues(map[string][]string{"X-Tag": {"b"}})
//	// X-Tag: a,b
func (rb *RequestBuilder) WithHeaderValues(headers map[string][]string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		for _, k := range sortedKeys(headers) {
			out.headers.add(k, headers[k]...)
		}
	})
}

// WithBasicAuth sends credentials with HTTP basic authentication. It
// replaces any earlier basic or digest credentials.
func (rb *RequestBuilder) WithBasicAuth(username, password string) *RequestBuilder {
	return rb.withAuth(AuthBasic, username, password)
}

// WithDigestAuth answers digest challenges with the given credentials. It
// replaces any earlier basic or digest credentials.
func (rb *RequestBuilder) WithDigestAuth(username, password string) *RequestBuilder {
	return rb.withAuth(AuthDigest, username, password)
}

func (rb *RequestBuilder) withAuth(mode AuthMode, username, password string) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		out.options[OptionAuthMode] = mode
		out.options[OptionCredentials] = username + ":" + password
	})
}

// WithToken sets the Authorization header to "<type> <token>". The type
// defaults to "Bearer"; an empty type leaves the bare token.
//
//	rb.WithToken("abc")          // Authorization: Bearer abc
//	rb.WithToken("abc", "Token") // Authorization: Token abc
//	rb.WithToken("abc", "")      // Authorization: abc
func (rb *RequestBuilder) WithToken(token string, tokenType ...string) *RequestBuilder {
	typ := "Bearer"
	if len(tokenType) > 0 {
		typ = tokenType[0]
	}
	return rb.Header("Authorization", strings.TrimSpace(typ+" "+token))
}

// WithUserAgent sets the User-Agent header.
func (rb *RequestBuilder) WithUserAgent(userAgent string) *RequestBuilder {
	return rb.Header("User-Agent", userAgent)
}

// WithCookies sends cookies as "k1=v1; k2=v2", ordered by name. The
// domain is accepted for call-site symmetry and not used, since the
// cookies are sent to whatever host the request targets.
func (rb *RequestBuilder) WithCookies(cookies map[string]string, domain string) *RequestBuilder {
	_ = domain
	pairs := make([]string, 0, len(cookies))
	for _, k := range sortedKeys(cookies) {
		pairs = append(pairs, k+"="+cookies[k])
	}
	return rb.with(func(out *RequestBuilder) {
		out.options[OptionCookie] = strings.Join(pairs, "; ")
	})
}

// WithCookieList is WithCookies for callers that need a fixed order: the
// cookies are sent as given. Only Name and Value are used.
func (rb *RequestBuilder) WithCookieList(cookies []*http.Cookie, domain string) *RequestBuilder {
	_ = domain
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			return rb.fail("WithCookieList", "cookies", "cookie name must not be empty")
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return rb.with(func(out *RequestBuilder) {
		out.options[OptionCookie] = strings.Join(pairs, "; ")
	})
}

// WithoutVerifying disables TLS certificate and host name verification.
func (rb *RequestBuilder) WithoutVerifying() *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		out.options[OptionVerifyPeer] = false
		out.options[OptionVerifyHost] = false
	})
}

// Timeout bounds each attempt. Zero means no limit.
func (rb *RequestBuilder) Timeout(timeout time.Duration) *RequestBuilder {
	if timeout < 0 {
		return rb.fail("Timeout", "timeout", "must not be negative")
	}
	return rb.with(func(out *RequestBuilder) { out.options[OptionTimeout] = timeout })
}

// Retry makes up to times attempts, waiting sleep between them. Only
// transport failures are retried; an HTTP error status is a result.
//
//	resp, err := rb.Retry(3, 100*time.Millisecond).Get(ctx, "/flaky", nil)
func (rb *RequestBuilder) Retry(times int, sleep time.Duration) *RequestBuilder {
	policy := RetryPolicy{Attempts: times, Delay: sleep}
	if err := policy.validate(); err != nil {
		return rb.with(func(out *RequestBuilder) { out.err = err })
	}
	return rb.with(func(out *RequestBuilder) { out.retry = policy })
}

// RetryWithBackOff makes up to times attempts with waits taken from a
// fresh BackOff per request:
//
//	rb.RetryWithBackOff(5, func() backoff.BackOff {
//	    return httpclient.NewDecorrelatedJitterBackOff(100*time.Millisecond, 2*time.Second)
//	})
func (rb *RequestBuilder) RetryWithBackOff(times int, newBackOff func() backoff.BackOff) *RequestBuilder {
	policy := RetryPolicy{Attempts: times, NewBackOff: newBackOff}
	if err := policy.validate(); err != nil {
		return rb.with(func(out *RequestBuilder) { out.err = err })
	}
	return rb.with(func(out *RequestBuilder) { out.retry = policy })
}

// WithOptions merges transport options. Keys that are already set keep
// their value.
func (rb *RequestBuilder) WithOptions(opts TransportOptions) *RequestBuilder {
	return rb.with(func(out *RequestBuilder) {
		for k, v := range opts {
			if _, exists := out.options[k]; !exists {
				out.options[k] = v
			}
		}
	})
}

// EnableTrace captures per-phase timings, available from
// Response.TraceInfo.
func (rb *RequestBuilder) EnableTrace() *RequestBuilder {
	return rb.with(func(out *RequestBuilder) { out.options[OptionTrace] = true })
}

// Accept sets the Accept header.
func (rb *RequestBuilder) Accept(contentType string) *RequestBuilder {
	return rb.Header("Accept", contentType)
}

// AcceptJSON sets Accept to application/json.
func (rb *RequestBuilder) AcceptJSON() *RequestBuilder {
	return rb.Accept("application/json")
}

// AsJSON encodes verb data as JSON and sets Content-Type accordingly.
func (rb *RequestBuilder) AsJSON() *RequestBuilder {
	return rb.BodyFormat(BodyFormatJSON).ContentType("application/json")
}

// AsForm encodes verb data as a url-encoded form and sets Content-Type
// accordingly.
func (rb *RequestBuilder) AsForm() *RequestBuilder {
	return rb.BodyFormat(BodyFormatForm).ContentType("application/x-www-form-urlencoded")
}

// Get sends a GET request. query, when non-empty, is appended to the URL.
func (rb *RequestBuilder) Get(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	return rb.send(ctx, http.MethodGet, rawURL, query, nil)
}

// Head sends a HEAD request.
func (rb *RequestBuilder) Head(ctx context.Context, rawURL string) (*Response, error) {
	return rb.send(ctx, http.MethodHead, rawURL, nil, nil)
}

// Options sends an OPTIONS request.
func (rb *RequestBuilder) Options(ctx context.Context, rawURL string) (*Response, error) {
	return rb.send(ctx, http.MethodOptions, rawURL, nil, nil)
}

// Post sends a POST request with data encoded per the body format.
func (rb *RequestBuilder) Post(ctx context.Context, rawURL string, data any) (*Response, error) {
	return rb.send(ctx, http.MethodPost, rawURL, nil, data)
}

// Put sends a PUT request with data encoded per the body format.
func (rb *RequestBuilder) Put(ctx context.Context, rawURL string, data any) (*Response, error) {
	return rb.send(ctx, http.MethodPut, rawURL, nil, data)
}

// Patch sends a PATCH request with data encoded per the body format.
func (rb *RequestBuilder) Patch(ctx context.Context, rawURL string, data any) (*Response, error) {
	return rb.send(ctx, http.MethodPatch, rawURL, nil, data)
}

// Delete sends a DELETE request with data encoded per the body format.
func (rb *RequestBuilder) Delete(ctx context.Context, rawURL string, data any) (*Response, error) {
	return rb.send(ctx, http.MethodDelete, rawURL, nil, data)
}

// Resolve builds the ResolvedRequest a verb would dispatch, without
// sending it.
func (rb *RequestBuilder) Resolve(method, rawURL string, query url.Values, data any) (*ResolvedRequest, error) {
	if rb.err != nil {
		return nil, rb.err
	}

	body, err := encodeBody(rb.bodyFormat, data)
	if err != nil {
		return nil, err
	}

	return &ResolvedRequest{
		Method:    strings.ToUpper(method),
		URL:       buildURL(rb.baseURL, rawURL, query),
		Headers:   rb.headers.lines(),
		Body:      body,
		Options:   rb.options.clone(),
		Operation: rb.operation,
	}, nil
}

func (rb *RequestBuilder) send(
	ctx context.Context,
	method, rawURL string,
	query url.Values,
	data any,
) (*Response, error) {
	req, err := rb.Resolve(method, rawURL, query, data)
	if err != nil {
		return nil, err
	}

	c := rb.client
	if c == nil {
		c = defaultClient()
	}
	return c.dispatch(ctx, req, rb.retry)
}

// buildURL joins base and path with a single "/" and appends query with
// "?" or "&" depending on whether the URL already has a query string.
func buildURL(base, path string, query url.Values) string {
	target := path
	if base != "" {
		target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}

	if len(query) > 0 {
		glue := "?"
		if strings.Contains(target, "?") {
			glue = "&"
		}
		target += glue + query.Encode()
	}
	return target
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
