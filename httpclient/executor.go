package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs a ResolvedRequest against a Transport, retrying
// transport failures according to a RetryPolicy.
//
// Executor is safe for concurrent use.
type Executor struct {
	transport Transport
	cfg       *internalConfig
}

// NewExecutor creates an Executor for the given transport.
func NewExecutor(t Transport, opts ...Option) *Executor {
	return newExecutor(t, newConfig(opts...))
}

func newExecutor(t Transport, cfg *internalConfig) *Executor {
	return &Executor{transport: t, cfg: cfg}
}

// Execute issues req up to policy.Attempts times.
//
// The first completed exchange is returned, whatever its status code.
// When every attempt fails, or the caller's context ends the loop early,
// the result is a *TransportError wrapping the last transport error.
// An error wrapped with backoff.Permanent, such as a body that cannot be
// encoded, is returned unwrapped after that attempt.
// Waits happen in the calling goroutine.
func (e *Executor) Execute(
	ctx context.Context,
	req *ResolvedRequest,
	policy RetryPolicy,
) (*RawResponse, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}

	ctx, span := e.cfg.Tracer.Start(ctx, spanName(req),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
			attribute.Int("retry.max_attempts", policy.Attempts),
		),
	)
	defer span.End()

	attrs := e.cfg.baseAttributes()
	b := policy.backOff()
	b.Reset()
	start := time.Now()

	var (
		attempt int
		lastErr error
		stopErr error
	)
	for attempt = 1; ; attempt++ {
		resp, err := e.transport.Issue(ctx, req)
		if err == nil && resp == nil {
			err = backoff.Permanent(ErrNilResponse)
		}
		if err == nil {
			e.finish(ctx, span, attrs, attempt, start, nil)
			return resp, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			e.finishPermanent(ctx, span, attrs, attempt, start, permanent.Err)
			return nil, permanent.Err
		}
		lastErr = err

		if attempt >= policy.Attempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			stopErr = ctxErr
			break
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		e.recordRetry(ctx, span, attrs, attempt, err, wait)

		if sleepErr := e.cfg.Sleep(ctx, wait); sleepErr != nil {
			stopErr = sleepErr
			break
		}
	}

	if stopErr != nil && !errors.Is(lastErr, stopErr) {
		lastErr = errors.Join(lastErr, stopErr)
	}

	tErr := &TransportError{
		Method:   req.Method,
		URL:      req.URL,
		Attempts: attempt,
		Kind:     ClassifyError(lastErr),
		Err:      lastErr,
	}
	e.finish(ctx, span, attrs, attempt, start, tErr)
	return nil, tErr
}

func (e *Executor) recordRetry(
	ctx context.Context,
	span trace.Span,
	attrs []attribute.KeyValue,
	attempt int,
	err error,
	wait time.Duration,
) {
	kind := ClassifyError(err)

	if span.IsRecording() {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("retry.attempt", attempt),
			attribute.Int64("retry.delay_ms", wait.Milliseconds()),
			attribute.String("retry.reason", string(kind)),
		))
	}
	e.cfg.Metrics.recordRetryAttempt(ctx, attrs, attempt)

	e.cfg.debug().
		Int("attempt", attempt).
		Dur("wait", wait).
		Str("error_type", string(kind)).
		Err(err).
		Msg("HTTP attempt failed, retrying")
}

func (e *Executor) finish(
	ctx context.Context,
	span trace.Span,
	attrs []attribute.KeyValue,
	attempts int,
	start time.Time,
	err *TransportError,
) {
	span.SetAttributes(attribute.Int("http.attempt_count", attempts))
	if attempts > 1 {
		e.cfg.Metrics.recordRetryDuration(ctx, attrs, time.Since(start))
	}
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.type", string(err.Kind)))
	if attempts > 1 {
		e.cfg.Metrics.recordRetryExhausted(ctx, attrs)
	}
}

func (e *Executor) finishPermanent(
	ctx context.Context,
	span trace.Span,
	attrs []attribute.KeyValue,
	attempts int,
	start time.Time,
	err error,
) {
	span.SetAttributes(attribute.Int("http.attempt_count", attempts))
	if attempts > 1 {
		e.cfg.Metrics.recordRetryDuration(ctx, attrs, time.Since(start))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	e.cfg.debug().
		Int("attempt", attempts).
		Err(err).
		Msg("HTTP attempt failed, not retrying")
}

func spanName(req *ResolvedRequest) string {
	if req.Operation != "" {
		return "HTTP " + req.Method + " " + req.Operation
	}
	return "HTTP " + req.Method
}
