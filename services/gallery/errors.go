package gallery

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectionUnavailable means every provider failed and no cached
	// copy could serve the request.
	ErrCollectionUnavailable = errors.New("collection unavailable")

	// ErrInvalidPageRequest means the pagination parameters are out of
	// their accepted range.
	ErrInvalidPageRequest = errors.New("invalid page request")
)

// OrchestrationError annotates a failure with the subject and the
// operation that was running when it happened.
type OrchestrationError struct {
	Subject string
	Op      string
	Err     error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("gallery %s for %q: %v", e.Op, e.Subject, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

func newOrchestrationError(subject, op string, err error) *OrchestrationError {
	return &OrchestrationError{Subject: subject, Op: op, Err: err}
}
