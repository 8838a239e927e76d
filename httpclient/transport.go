package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/icholy/digest"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Transport         = (*HTTPTransport)(nil)
	_ http.RoundTripper = (*otelTransport)(nil)
)

// HTTPTransport is the net/http implementation of Transport. It honors
// every OptionKey defined in this package:
//
//   - OptionTimeout bounds each Issue call
//   - OptionVerifyPeer / OptionVerifyHost set to false skip TLS
//     verification (net/http cannot disable them separately)
//   - OptionAuthMode with OptionCredentials applies basic or digest auth
//   - OptionCookie is sent as a Cookie header
//   - OptionTrace fills RawResponse.Trace
//
// Map and url.Values bodies are sent as multipart/form-data; FileUpload
// entries become file parts.
type HTTPTransport struct {
	cfg *internalConfig

	secureOnce   sync.Once
	secure       http.RoundTripper
	insecureOnce sync.Once
	insecure     http.RoundTripper
}

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	return newHTTPTransport(newConfig(opts...))
}

func newHTTPTransport(cfg *internalConfig) *HTTPTransport {
	return &HTTPTransport{cfg: cfg}
}

// Issue performs one HTTP exchange and reads the whole response body.
func (t *HTTPTransport) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	if timeout, ok := req.Options.Duration(OptionTimeout); ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var tracer *requestTracer
	if enabled, _ := req.Options.Bool(OptionTrace); enabled {
		tracer = newRequestTracer()
		ctx = httptrace.WithClientTrace(ctx, tracer.clientTrace())
	}

	sent := &sentHeaders{}
	ctx = context.WithValue(ctx, sentHeadersKey{}, sent)

	// Building the request fails the same way on every attempt.
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	t.cfg.debug().
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.String()).
		Str("operation", req.Operation).
		Msg("HTTP request")

	start := time.Now()
	resp, err := t.clientFor(req.Options).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if limit := t.cfg.transportConfig.MaxResponseBodyBytes; limit > 0 {
		body = io.LimitReader(resp.Body, limit)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	t.cfg.debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(payload)).
		Msg("HTTP response")

	raw := &RawResponse{
		StatusCode:     resp.StatusCode,
		Status:         resp.Status,
		Proto:          resp.Proto,
		Header:         resp.Header,
		Body:           payload,
		RequestHeaders: sent.linesOr(httpReq.Header),
	}
	if tracer != nil {
		raw.Trace = tracer.info()
	}
	return raw, nil
}

// newRequest converts a ResolvedRequest into an *http.Request.
func (t *HTTPTransport) newRequest(ctx context.Context, req *ResolvedRequest) (*http.Request, error) {
	body, contentType, err := requestBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = linesToHeader(req.Headers)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", defaultUserAgent)
	}

	if cookie, ok := req.Options.String(OptionCookie); ok && cookie != "" {
		httpReq.Header.Add("Cookie", cookie)
	}

	if mode, _ := req.Options.String(OptionAuthMode); AuthMode(mode) == AuthBasic {
		if creds, ok := req.Options.String(OptionCredentials); ok {
			user, pass, _ := strings.Cut(creds, ":")
			httpReq.SetBasicAuth(user, pass)
		}
	}

	return httpReq, nil
}

// requestBody returns the wire body and, for multipart data, the
// Content-Type carrying the boundary.
func requestBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "", nil
	case io.Reader:
		return v, "", nil
	}
	if isMultipartBody(body) {
		buf, contentType, err := buildMultipart(body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: multipart: %w", ErrBodyEncoding, err)
		}
		return buf, contentType, nil
	}
	return nil, "", fmt.Errorf("%w: unsupported body type %T", ErrBodyEncoding, body)
}

// clientFor picks the http.Client matching the TLS and auth options.
func (t *HTTPTransport) clientFor(opts TransportOptions) *http.Client {
	rt := t.roundTripper(insecureRequested(opts))

	if mode, _ := opts.String(OptionAuthMode); AuthMode(mode) == AuthDigest {
		creds, _ := opts.String(OptionCredentials)
		user, pass, _ := strings.Cut(creds, ":")
		rt = &digest.Transport{Username: user, Password: pass, Transport: rt}
	}

	return &http.Client{Transport: rt, CheckRedirect: t.checkRedirect}
}

func (t *HTTPTransport) roundTripper(insecure bool) http.RoundTripper {
	if insecure {
		t.insecureOnce.Do(func() {
			t.insecure = newOtelTransport(t.cfg.buildTransport(true), t.cfg)
		})
		return t.insecure
	}
	t.secureOnce.Do(func() {
		t.secure = newOtelTransport(t.cfg.buildTransport(false), t.cfg)
	})
	return t.secure
}

func (t *HTTPTransport) checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) > t.cfg.transportConfig.MaxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

func insecureRequested(opts TransportOptions) bool {
	if peer, ok := opts.Bool(OptionVerifyPeer); ok && !peer {
		return true
	}
	if host, ok := opts.Bool(OptionVerifyHost); ok && !host {
		return true
	}
	return false
}

// defaultUserAgent is what net/http would send for HTTP/1.1. Setting it
// explicitly keeps RequestHeaders in line with the wire.
const defaultUserAgent = "Go-http-client/1.1"

type sentHeadersKey struct{}

// sentHeaders holds the headers of the last request that reached the
// network, after digest auth and trace propagation added theirs.
type sentHeaders struct {
	lines []string
}

func (s *sentHeaders) record(h http.Header) {
	s.lines = flattenHeader(h)
}

func (s *sentHeaders) linesOr(fallback http.Header) []string {
	if s.lines != nil {
		return s.lines
	}
	return flattenHeader(fallback)
}

// flattenHeader renders h as sorted "Name: v1,v2" lines.
func flattenHeader(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, formatHeaderLine(k, strings.Join(h[k], ",")))
	}
	return lines
}

// otelTransport wraps an http.RoundTripper with OpenTelemetry instrumentation.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	propagator propagation.TextMapPropagator
}

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{base: base, cfg: cfg, propagator: cfg.Propagators}
}

// RoundTrip implements http.RoundTripper with tracing and metrics.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := t.cfg.Tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)
	defer span.End()

	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	if sent, ok := ctx.Value(sentHeadersKey{}).(*sentHeaders); ok {
		sent.record(req.Header)
	}

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequestStart(ctx, baseAttrs)
	defer t.cfg.Metrics.recordActiveRequestEnd(ctx, baseAttrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, baseAttrs)
	}

	tracer := newRequestTracer()
	ctx = httptrace.WithClientTrace(ctx, tracer.clientTrace())

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	duration := time.Since(start)
	tracer.addSpanEvents(span)

	metricAttrs := t.metricAttributes(req)
	if err != nil {
		kind := ClassifyError(err)
		setSpanError(span, err, kind)
		t.cfg.Metrics.recordError(ctx, kind, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, duration,
			append(metricAttrs, attribute.String("error.type", string(kind))))
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	metricAttrs = append(metricAttrs, attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		code := strconv.Itoa(resp.StatusCode)
		span.SetStatus(codes.Error, "HTTP "+code)
		span.SetAttributes(attribute.String("error.type", code))
		metricAttrs = append(metricAttrs, attribute.String("error.type", code))
	}
	if resp.ContentLength > 0 {
		t.cfg.Metrics.recordResponseBodySize(ctx, resp.ContentLength, baseAttrs)
	}
	t.cfg.Metrics.recordRequestDuration(ctx, duration, metricAttrs)

	return resp, nil
}

func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.metricAttributes(req), attribute.String("url.full", req.URL.String()))
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}

// metricAttributes returns the low-cardinality attributes shared by spans
// and metrics.
func (t *otelTransport) metricAttributes(req *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	port := req.URL.Port()
	if port == "" {
		switch req.URL.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	if p, err := strconv.Atoi(port); err == nil {
		attrs = append(attrs, attribute.Int("server.port", p))
	}
	return attrs
}
