package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds per-phase timings of one attempt. Phases that did not
// happen (a reused connection skips DNS and connect) are zero.
//
// Enable it per request with EnableTrace:
//
//	resp, err := client.Request().EnableTrace().Get(ctx, "/users/1", nil)
//	fmt.Println(resp.TraceInfo())
type TraceInfo struct {
	DNSLookup    time.Duration
	Connect      time.Duration
	TLSHandshake time.Duration

	// ServerTime is from request written to first response byte.
	ServerTime time.Duration

	Total time.Duration

	ConnReused bool
	RemoteAddr string
}

// String formats the timings one phase per line.
func (t *TraceInfo) String() string {
	if t == nil {
		return "TraceInfo: nil (EnableTrace() was not called)"
	}
	return fmt.Sprintf(
		"DNS Lookup:    %s\nTCP Connect:   %s\nTLS Handshake: %s\nServer Time:   %s\nTotal Time:    %s",
		t.DNSLookup, t.Connect, t.TLSHandshake, t.ServerTime, t.Total,
	)
}

// requestTracer collects httptrace callbacks for a single attempt.
type requestTracer struct {
	start      time.Time
	dnsStart   time.Time
	dnsDone    time.Time
	connStart  time.Time
	connDone   time.Time
	tlsStart   time.Time
	tlsDone    time.Time
	wrote      time.Time
	firstByte  time.Time
	connReused bool
	remoteAddr string
	tlsProto   string
}

func newRequestTracer() *requestTracer {
	return &requestTracer{start: time.Now()}
}

func (t *requestTracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			t.connReused = info.Reused
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				t.remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		DNSStart:     func(httptrace.DNSStartInfo) { t.dnsStart = time.Now() },
		DNSDone:      func(httptrace.DNSDoneInfo) { t.dnsDone = time.Now() },
		ConnectStart: func(_, _ string) { t.connStart = time.Now() },
		ConnectDone:  func(_, _ string, _ error) { t.connDone = time.Now() },
		TLSHandshakeStart: func() {
			t.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			t.tlsDone = time.Now()
			t.tlsProto = state.NegotiatedProtocol
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.wrote = time.Now() },
		GotFirstResponseByte: func() { t.firstByte = time.Now() },
	}
}

func phase(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from)
}

func (t *requestTracer) info() *TraceInfo {
	return &TraceInfo{
		DNSLookup:    phase(t.dnsStart, t.dnsDone),
		Connect:      phase(t.connStart, t.connDone),
		TLSHandshake: phase(t.tlsStart, t.tlsDone),
		ServerTime:   phase(t.wrote, t.firstByte),
		Total:        time.Since(t.start),
		ConnReused:   t.connReused,
		RemoteAddr:   t.remoteAddr,
	}
}

// addSpanEvents records the network phases on span.
func (t *requestTracer) addSpanEvents(span trace.Span) {
	if !span.IsRecording() {
		return
	}
	if !t.dnsDone.IsZero() {
		span.AddEvent("dns.done", trace.WithTimestamp(t.dnsDone), trace.WithAttributes(
			attribute.Int64("dns.duration_ms", phase(t.dnsStart, t.dnsDone).Milliseconds()),
		))
	}
	if !t.connDone.IsZero() {
		span.AddEvent("connect.done", trace.WithTimestamp(t.connDone), trace.WithAttributes(
			attribute.Int64("connect.duration_ms", phase(t.connStart, t.connDone).Milliseconds()),
		))
	}
	if !t.tlsDone.IsZero() {
		span.AddEvent("tls.done", trace.WithTimestamp(t.tlsDone), trace.WithAttributes(
			attribute.Int64("tls.duration_ms", phase(t.tlsStart, t.tlsDone).Milliseconds()),
			attribute.String("tls.protocol", t.tlsProto),
		))
	}
	if !t.firstByte.IsZero() {
		span.AddEvent("got_first_response_byte", trace.WithTimestamp(t.firstByte), trace.WithAttributes(
			attribute.Int64("ttfb_ms", phase(t.wrote, t.firstByte).Milliseconds()),
			attribute.Bool("connection.reused", t.connReused),
		))
	}
}

// setSpanError records an error on the span with proper status and attributes.
func setSpanError(span trace.Span, err error, kind ErrorKind) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind != "" {
		span.SetAttributes(attribute.String("error.type", string(kind)))
	}
}
