package querycache

import (
	"errors"
	"fmt"
	"net/http"
)

// The cache itself stores fetch errors opaquely; this taxonomy exists for
// fetcher authors and for consumers that branch on failure class, such as
// bindings that force a logout when credentials go stale.

// NetworkError reports a transport-level failure: the request never
// produced a response from the remote API.
type NetworkError struct {
	// Op names the logical operation that failed, e.g. "fetch pricing".
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteError reports a response the remote API answered with a failure
// status or payload.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote error: status %d: %s", e.StatusCode, e.Message)
}

// NewRemoteError builds a RemoteError from a status code and message.
func NewRemoteError(statusCode int, message string) *RemoteError {
	return &RemoteError{StatusCode: statusCode, Message: message}
}

// IsNetworkError reports whether err wraps a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRemoteError reports whether err wraps a RemoteError, returning it when
// present.
func IsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsStaleAuth reports whether err is a RemoteError carrying an
// unauthorized status. Consumers use this as the logout trigger.
func IsStaleAuth(err error) bool {
	re, ok := IsRemoteError(err)
	return ok && re.StatusCode == http.StatusUnauthorized
}
