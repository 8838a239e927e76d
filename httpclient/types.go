package httpclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// BodyFormat selects how request data is encoded when a verb is dispatched.
type BodyFormat string

const (
	// BodyFormatNone passes data through unchanged, except that string data
	// is parsed as a query string into url.Values.
	BodyFormatNone BodyFormat = ""

	// BodyFormatJSON marshals data to JSON.
	BodyFormatJSON BodyFormat = "json"

	// BodyFormatForm encodes data as application/x-www-form-urlencoded.
	BodyFormatForm BodyFormat = "form"
)

// OptionKey names a transport option carried by a ResolvedRequest.
type OptionKey string

// Transport options understood by HTTPTransport. Custom transports may
// define and read their own keys.
const (
	// OptionTimeout is the per-attempt time limit. Accepts time.Duration,
	// or an integer / float number of seconds.
	OptionTimeout OptionKey = "timeout"

	// OptionVerifyPeer toggles server certificate verification.
	OptionVerifyPeer OptionKey = "verify_peer"

	// OptionVerifyHost toggles server host name verification.
	OptionVerifyHost OptionKey = "verify_host"

	// OptionAuthMode is an AuthMode.
	OptionAuthMode OptionKey = "auth_mode"

	// OptionCredentials is "user:password".
	OptionCredentials OptionKey = "credentials"

	// OptionCookie is a serialized Cookie header value ("a=1; b=2").
	OptionCookie OptionKey = "cookie"

	// OptionTrace enables per-phase timing capture.
	OptionTrace OptionKey = "trace"
)

// AuthMode selects the HTTP authentication scheme used with OptionCredentials.
type AuthMode string

const (
	AuthBasic  AuthMode = "basic"
	AuthDigest AuthMode = "digest"
)

// TransportOptions is a mapping of option keys to values.
type TransportOptions map[OptionKey]any

func (o TransportOptions) clone() TransportOptions {
	out := make(TransportOptions, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Duration reads a duration option. Integers and floats are seconds.
func (o TransportOptions) Duration(key OptionKey) (time.Duration, bool) {
	switch v := o[key].(type) {
	case time.Duration:
		return v, true
	case int:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	default:
		return 0, false
	}
}

// Bool reads a boolean option. Integers are true when non-zero.
func (o TransportOptions) Bool(key OptionKey) (bool, bool) {
	switch v := o[key].(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// String reads a string option.
func (o TransportOptions) String(key OptionKey) (string, bool) {
	switch v := o[key].(type) {
	case string:
		return v, true
	case AuthMode:
		return string(v), true
	default:
		return "", false
	}
}

// ResolvedRequest is the fully materialized description handed to the
// Executor: method, final URL, flattened header lines, encoded body and
// transport options.
type ResolvedRequest struct {
	Method string

	// URL is the final URL including any query string.
	URL string

	// Headers are "Name: value" lines. List values are joined with ",".
	Headers []string

	// Body is nil, []byte, or a pass-through value such as url.Values or a
	// map containing FileUpload entries.
	Body any

	Options TransportOptions

	// Operation names the request in spans and logs. Optional.
	Operation string
}

// Header returns the value of the first header line named key.
func (r *ResolvedRequest) Header(key string) string {
	for _, line := range r.Headers {
		name, value, ok := splitHeaderLine(line)
		if ok && strings.EqualFold(name, key) {
			return value
		}
	}
	return ""
}

// SetHeader replaces every header line named key with a single line.
func (r *ResolvedRequest) SetHeader(key, value string) {
	lines := make([]string, 0, len(r.Headers)+1)
	for _, line := range r.Headers {
		name, _, ok := splitHeaderLine(line)
		if ok && strings.EqualFold(name, key) {
			continue
		}
		lines = append(lines, line)
	}
	r.Headers = append(lines, formatHeaderLine(http.CanonicalHeaderKey(key), value))
}

func (r *ResolvedRequest) clone() *ResolvedRequest {
	out := *r
	out.Headers = append([]string(nil), r.Headers...)
	out.Options = r.Options.clone()
	return &out
}

// RawResponse is what a Transport returns for a completed exchange. Any
// status code is a completed exchange.
type RawResponse struct {
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header
	Body       []byte

	// RequestHeaders are the header lines actually sent, sorted by name.
	RequestHeaders []string

	// Trace is set when OptionTrace was enabled.
	Trace *TraceInfo
}

// Transport issues a single attempt of a resolved request.
//
// A non-nil error means the exchange did not complete (connection, DNS,
// TLS or timeout failure). HTTP error statuses are returned as responses.
type Transport interface {
	Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *ResolvedRequest) (*RawResponse, error)

// Issue implements Transport.
func (f TransportFunc) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	return f(ctx, req)
}
