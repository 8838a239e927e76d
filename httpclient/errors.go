package httpclient

import (
	"errors"
	"fmt"
)

// ConfigurationError reports invalid input given to a builder method.
// It is raised at the call site and returned by every verb of the
// affected builder without contacting the transport.
type ConfigurationError struct {
	// Op is the builder method that rejected the input, e.g. "Retry".
	Op string

	// Field names the offending argument.
	Field string

	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("httpclient: invalid %s for %s: %s", e.Field, e.Op, e.Reason)
}

// TransportError is returned when every permitted attempt failed at the
// transport level. Err is the error of the final attempt.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Kind     ErrorKind
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("httpclient: %s %s failed after %d attempt(s) (%s): %v",
		e.Method, e.URL, e.Attempts, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

var (
	// ErrBodyEncoding wraps failures to encode request data. It is never
	// retried.
	ErrBodyEncoding = errors.New("httpclient: body encoding failed")

	// ErrNilResponse is returned when a Transport reports neither a
	// response nor an error.
	ErrNilResponse = errors.New("httpclient: transport returned no response")
)
