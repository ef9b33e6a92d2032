// Package gateway implements the authenticated HTTP transport shared by
// the Data Lab auth, query, and storage services. It injects the
// X-DL-AuthToken header, normalizes status code and body into a Response,
// and classifies failures into the client error taxonomy.
package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the client packages.
// Use errors.Is(err, gateway.ErrPermission) to check.
var (
	// ErrPermission marks a client-side policy refusal: deleting the
	// storage root or a reserved container, or submitting an ADQL query
	// that uses non-standard function namespaces. No request is sent.
	ErrPermission = errors.New("datalab: operation not permitted")

	// ErrService marks any non-200 response from a remote endpoint.
	// The server's error text is the contract and is carried verbatim
	// in the wrapping ServiceError.
	ErrService = errors.New("datalab: service error")
)

// ServiceError wraps ErrService with the HTTP status and the verbatim
// response body. StatusCode 0 means a transport-level failure (connection
// refused, malformed response) with the underlying error in Cause.
type ServiceError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("datalab: transport: %s", e.Message)
	}

	return fmt.Sprintf("datalab: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}

	return ErrService
}

// IsStatus reports whether err is a ServiceError with the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.StatusCode == code
}
