package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTraceInfo_String(t *testing.T) {
	var nilInfo *TraceInfo
	assert.Equal(t, "TraceInfo: nil (EnableTrace() was not called)", nilInfo.String())

	info := &TraceInfo{DNSLookup: time.Millisecond, Total: 5 * time.Millisecond}
	assert.Contains(t, info.String(), "DNS Lookup:    1ms")
	assert.Contains(t, info.String(), "Total Time:    5ms")
}

func TestPhase(t *testing.T) {
	now := time.Now()

	assert.Zero(t, phase(time.Time{}, now))
	assert.Zero(t, phase(now, time.Time{}))
	assert.Equal(t, time.Second, phase(now, now.Add(time.Second)))
}

func TestRequestTracer_Info(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tracer := newRequestTracer()
	ctx := httptrace.WithClientTrace(context.Background(), tracer.clientTrace())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	info := tracer.info()
	assert.Positive(t, info.Total)
	assert.False(t, info.ConnReused)
	assert.NotEmpty(t, info.RemoteAddr)
}

func TestSetSpanError(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		wantAttr bool
	}{
		{name: "given kind, then error.type is set", kind: ErrorKindTimeout, wantAttr: true},
		{name: "given empty kind, then no error.type", kind: "", wantAttr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, tp := newTestTracer(t)
			_, span := tp.Tracer("test").Start(context.Background(), "op")

			setSpanError(span, errors.New("boom"), tt.kind)
			span.End()

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, "boom", spans[0].Status().Description)
			require.Len(t, spans[0].Events(), 1)
			assert.Equal(t, "exception", spans[0].Events()[0].Name)

			_, ok := spanAttr(spans[0], "error.type")
			assert.Equal(t, tt.wantAttr, ok)
		})
	}
}

func TestOtelTransport_RoundTrip(t *testing.T) {
	var gotTraceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent = r.Header.Get("Traceparent")
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sr, tp := newTestTracer(t)
	client := &http.Client{Transport: NewTransport(nil,
		WithTracerProvider(tp),
		WithPropagators(propagation.TraceContext{}),
	)}

	resp, err := client.Get(server.URL + "/ok")
	require.NoError(t, err)
	_ = resp.Body.Close()
	resp, err = client.Get(server.URL + "/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.NotEmpty(t, gotTraceparent)

	assert.Equal(t, "HTTP GET", spans[0].Name())
	status, ok := spanAttr(spans[0], "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	errType, ok := spanAttr(spans[1], "error.type")
	require.True(t, ok)
	assert.Equal(t, "404", errType.AsString())
}

func TestOtelTransport_RoundTripError(t *testing.T) {
	sr, tp := newTestTracer(t)
	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	client := &http.Client{Transport: NewTransport(base, WithTracerProvider(tp))}

	_, err := client.Get("http://example.com")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	errType, ok := spanAttr(spans[0], "error.type")
	require.True(t, ok)
	assert.Equal(t, "timeout", errType.AsString())
}
