package evidence

import (
	"errors"
	"fmt"
)

var (
	// ErrComponentNotFound indicates no event in the log matched a query.
	// Absence degrades the dependent trust claim; it does not abort a run.
	ErrComponentNotFound = errors.New("component not found in event log")

	// ErrParseIncomplete indicates the evidence document lacked the
	// expected structure.
	ErrParseIncomplete = errors.New("evidence parse incomplete")

	// ErrNoDigest indicates a matching event carried no digests.
	ErrNoDigest = errors.New("event carries no digest")
)

// NotFoundError wraps ErrComponentNotFound with the query that failed.
type NotFoundError struct {
	Query string
	Want  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Query, e.Want, ErrComponentNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrComponentNotFound
}
