package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned by the REST client.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthentication is returned for a 401 response, or when no valid
	// session token is available before a request is sent.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRequest is returned for any other non-2xx response, network error
	// or request deadline.
	ErrRequest = errors.New("request failed")

	// ErrDecode is returned when a 2xx response body cannot be decoded.
	// It also matches ErrRequest.
	ErrDecode = errors.New("decoding response")
)

// RequestError describes a failed REST call
type RequestError struct {
	Method string
	Path   string
	Status int
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("%s %s: server returned %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s: request failed", e.Method, e.Path)
	}
}

// Is makes every RequestError match ErrRequest, and a 401 match ErrAuthentication.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequest:
		return e.Status != http.StatusUnauthorized
	case ErrAuthentication:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
