package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/dynq/internal/dquery"
)

// RequestError is a failed request, tagged with the request id and query
// name so that it can be matched with the request's log lines.
//
// The cause is usually a *dquery.QueryError or a *token.Error; provider
// I/O errors pass through unchanged.
type RequestError struct {
	// RequestID identifies the failed request.
	RequestID string

	// QueryName is the logical query the request targeted.
	QueryName string

	// Op names the entry point: "query", "value", "unique", "entities".
	Op string

	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s %s (request=%s): %v", e.Op, e.QueryName, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.QueryName, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Code returns the query error code of err, or "" when err did not come
// from the pipeline or the token layer.
// Uses errors.As to handle wrapped errors.
func Code(err error) dquery.ErrorCode {
	code, _ := dquery.CodeOf(err)
	return code
}

// IsQueryNotFound returns true if the request named an unknown query.
func IsQueryNotFound(err error) bool {
	return Code(err) == dquery.ErrCodeQueryNotFound
}

// RequestIDOf returns the request id carried by err, if any.
func RequestIDOf(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.RequestID
	}
	return ""
}

// NewQueryNotFound creates the error for an unknown query name.
func NewQueryNotFound(name string, known []string) *dquery.QueryError {
	return &dquery.QueryError{
		Code:    dquery.ErrCodeQueryNotFound,
		Message: fmt.Sprintf("query %q not found (known: %v)", name, known),
	}
}
