package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrTimeout     = errors.New("ledger request timeout")
	ErrUnreachable = errors.New("ledger service unreachable")
	ErrNotFound    = errors.New("not found")
)

// TimeoutError is returned when the client-side deadline is exceeded.
type TimeoutError struct {
	Operation string
	After     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ledger service timeout after %s (%s): the service may be syncing with validators", e.After, e.Operation)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// TransportError is returned for a non-success HTTP status.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger service error (%d): %s", e.StatusCode, e.Body)
}

// IsRetryable returns true if the error should be retried by the caller.
func (e *TransportError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// RemoteError is a structured error returned by the ledger in the response envelope.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// UnreachableError is returned when the service cannot be reached at all.
type UnreachableError struct {
	Endpoint string
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("cannot connect to ledger service at %s: start the service or check the endpoint", e.Endpoint)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// ErrorKind groups ledger failures by how the UI should react.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindTimeout     ErrorKind = "timeout"     // retry
	KindTransport   ErrorKind = "transport"   // retry
	KindRemote      ErrorKind = "remote"      // show message verbatim
	KindUnreachable ErrorKind = "unreachable" // start service / fix endpoint
	KindOther       ErrorKind = "other"
)

// Classify returns the kind of a ledger error.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var remoteErr *RemoteError
	var transportErr *TransportError
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindOther
	}
}

// Guidance returns an actionable hint for the UI.
func Guidance(err error) string {
	switch Classify(err) {
	case KindTimeout, KindTransport:
		return "retry"
	case KindUnreachable:
		return "start the ledger service or check the endpoint"
	case KindRemote:
		return "rejected by the ledger"
	default:
		return ""
	}
}
