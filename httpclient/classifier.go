package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorKind classifies a transport failure. It is attached to
// TransportError and used as the error.type attribute on spans and metrics.
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindConnectionRefused ErrorKind = "connection_refused"
	ErrorKindConnectionReset   ErrorKind = "connection_reset"
	ErrorKindDNS               ErrorKind = "dns_error"
	ErrorKindTLS               ErrorKind = "tls_error"
	ErrorKindCancelled         ErrorKind = "cancelled"
	ErrorKindEOF               ErrorKind = "eof"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindCircuitOpen       ErrorKind = "circuit_open"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// ClassifyError returns the ErrorKind for a transport error.
//
// Typed checks run first; message patterns are a fallback for errors
// that third-party round trippers wrap without preserving their type.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, errTooManyHalfOpen):
		return ErrorKindCircuitOpen
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrorKindTimeout
		}
		return ErrorKindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return ErrorKindTLS
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorKindConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrorKindConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorKindEOF
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	patterns := []struct {
		substr string
		kind   ErrorKind
	}{
		{"timeout", ErrorKindTimeout},
		{"deadline exceeded", ErrorKindTimeout},
		{"connection refused", ErrorKindConnectionRefused},
		{"connection reset", ErrorKindConnectionReset},
		{"broken pipe", ErrorKindConnectionReset},
		{"no such host", ErrorKindDNS},
		{"x509", ErrorKindTLS},
		{"certificate", ErrorKindTLS},
		{"tls:", ErrorKindTLS},
		{"eof", ErrorKindEOF},
	}
	for _, p := range patterns {
		if strings.Contains(msg, p.substr) {
			return p.kind
		}
	}
	return ErrorKindUnknown
}

// isNetworkError reports whether err originated below HTTP. Used by the
// circuit breaker to decide which failures count against a host.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	switch ClassifyError(err) {
	case ErrorKindTimeout, ErrorKindConnectionRefused, ErrorKindConnectionReset,
		ErrorKindDNS, ErrorKindTLS, ErrorKindEOF:
		return true
	}
	return false
}
