package objectstore

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusClientFailure is the status carried by a StatusError when the client
// never got a response from the store (connection reset, DNS, TLS, ...).
const StatusClientFailure = -1

var ErrMalformedURL = errors.New("malformed object storage url")

// StatusError is the error a Backend returns for a failed call.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("object storage status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("object storage status %d: %s", e.StatusCode, e.Message)
}

type Class int

const (
	ClassUnknown Class = iota
	ClassNotFound
	ClassTransient
	ClassRejected
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	case ClassRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by a Backend onto the outcomes the client
// acts on. Errors that are not a *StatusError are ClassUnknown and are never
// retried or swallowed.
func Classify(err error) Class {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return ClassUnknown
	}
	switch statusErr.StatusCode {
	case StatusClientFailure:
		return ClassTransient
	case http.StatusNotFound:
		return ClassNotFound
	default:
		return ClassRejected
	}
}

func statusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
