package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the caller branches on.
var (
	// ErrNoConnectivity means the pre-flight connectivity check failed;
	// no exchange was attempted.
	ErrNoConnectivity = errors.New("no connectivity")

	// ErrUnauthenticated means token refresh and login are exhausted, or a
	// replayed request was rejected again.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// InvalidEndpointError means a request URL could not be built. This is a
// programmer error and should never surface on production paths.
type InvalidEndpointError struct {
	URL string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint: %s", e.URL)
}

// ServerError is any non-2xx status other than the handled 401. It carries
// the status and raw body text and is never retried.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
}

// SyncRequired reports whether the status maps to the same re-login /
// "sync required" signal as an authentication failure.
func (e *ServerError) SyncRequired() bool {
	return e.Status == 400 || e.Status == 403 || e.Status >= 500
}

// DecodingError means a 2xx body did not match the expected shape.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding failure: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// TransportError wraps low-level I/O failures from the HTTP exchange.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
