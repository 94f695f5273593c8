package scrape

import (
	"context"
	"errors"
	"net/http"
)

// Collaborator failures. Sources wrap these so callers can classify errors
// without knowing how the report was fetched.
var (
	// ErrElementNotFound means a required page element never appeared.
	ErrElementNotFound = errors.New("element not found")
	// ErrTimeout means an expected page state never materialized.
	ErrTimeout = errors.New("timed out")
	// ErrInvalidJob means the job description was rejected before running.
	ErrInvalidJob = errors.New("invalid job")
)

// ErrorKind classifies a scrape failure.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNotFound
	KindTimeout
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindInvalid:
		return "invalid"
	default:
		return "unexpected"
	}
}

// Kind classifies err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnexpected
	case errors.Is(err, ErrInvalidJob):
		return KindInvalid
	case errors.Is(err, ErrElementNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnexpected
	}
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindNotFound, KindTimeout:
		return http.StatusGatewayTimeout
	case KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Detail renders err for API clients.
func Detail(err error) string {
	switch Kind(err) {
	case KindNotFound, KindTimeout:
		return "Scrape timed out or element not found: " + err.Error()
	case KindInvalid:
		return err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}
}
