package llmstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrStreamInProgress indicates a second stream was started on a client
	// that already has one in flight.
	ErrStreamInProgress = errors.New("llmstream: streaming operation already in progress")

	// ErrStreamCancelled indicates the caller requested cancellation of an
	// in-flight stream.
	ErrStreamCancelled = errors.New("llmstream: stream cancelled by caller")

	// ErrStreamTimeout indicates the overall stream deadline or the
	// inter-chunk idle deadline was exceeded.
	ErrStreamTimeout = errors.New("llmstream: stream timed out")

	// ErrInvalidStreamFormat indicates a structured payload was expected but
	// could not be parsed, with raw-text fallback disabled.
	ErrInvalidStreamFormat = errors.New("llmstream: invalid stream payload format")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("llmstream: rate limit exceeded")

	// ErrServerUnavailable indicates the provider reported an internal or
	// server-side failure.
	ErrServerUnavailable = errors.New("llmstream: provider server error")

	// ErrUnauthenticated indicates missing or rejected credentials.
	ErrUnauthenticated = errors.New("llmstream: authentication failed")

	// ErrInvalidModel indicates the requested model is unknown or unsupported.
	ErrInvalidModel = errors.New("llmstream: invalid or unsupported model")
)

// ErrorKind tags a TransportError with its place in the failure taxonomy.
type ErrorKind string

const (
	// KindRequest is a failure before any response bytes were received
	// (connection refused, DNS failure, pre-flight timeout).
	KindRequest ErrorKind = "request"

	// KindStreaming is a streaming-specific failure not otherwise
	// classified, such as starting a second concurrent stream.
	KindStreaming ErrorKind = "streaming"

	// KindStreamingInterrupted is a connection lost after partial data was
	// received, or a caller-requested cancellation.
	KindStreamingInterrupted ErrorKind = "streaming_interrupted"

	// KindStreamingTimeout is an overall or idle deadline exceeded.
	KindStreamingTimeout ErrorKind = "streaming_timeout"

	// KindInvalidStreamFormat is an unparseable payload under strict decoding.
	KindInvalidStreamFormat ErrorKind = "invalid_stream_format"

	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindBadRequest     ErrorKind = "bad_request"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidModel   ErrorKind = "invalid_model"
	KindValidation     ErrorKind = "validation"
	KindContentBlocked ErrorKind = "content_blocked"
	KindServer         ErrorKind = "server"
	KindConfiguration  ErrorKind = "configuration"

	// KindUnknown is the fallback when no classification rule applied.
	KindUnknown ErrorKind = "unknown"
)

// TransportError is the single error type produced by this library. Every
// failure carries a taxonomy Kind, a human-readable Message, and, when the
// provider supplied them, a machine-readable Code and an HTTP status.
// A TransportError is immutable once constructed.
type TransportError struct {
	Kind       ErrorKind
	Message    string
	Code       string // provider-supplied machine-readable code, if any
	HTTPStatus int    // HTTP status of the failed exchange, if any
	Err        error  // wrapped sentinel or underlying error
}

func (e *TransportError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// KindOf returns the taxonomy kind carried by err, or KindUnknown when err is
// not a TransportError.
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsRetryable checks if an error is worth another attempt on the
// non-streaming request path. Only rate limits and server-side failures
// qualify; everything else requires caller intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindRateLimit, KindServer:
		return true
	}
	return false
}

// IsTimeout checks if an error was caused by the overall or idle deadline.
func IsTimeout(err error) bool {
	return KindOf(err) == KindStreamingTimeout
}

// IsInterrupted checks if an error indicates a stream that ended after
// partial data was delivered, whether by connection loss or cancellation.
func IsInterrupted(err error) bool {
	return KindOf(err) == KindStreamingInterrupted
}

// IsCancelled checks if an error was caused by a caller-requested
// cancellation rather than a network failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrStreamCancelled)
}
