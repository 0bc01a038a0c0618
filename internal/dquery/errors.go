package dquery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/token"
)

// QueryError represents a request the pipeline refused to run.
//
// Query errors include:
//   - Token errors: a path segment is unknown or not allowed
//   - Validation errors: tokens used where their capability forbids it
//     (every offending entry is reported at once, one per Details line)
//   - Shape mismatches: sequences whose tuple shapes differ were combined
//   - Unsupported combinations of pagination or aggregates
type QueryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Token is the full key of the offending token, when there is one.
	Token string

	// Details lists every offending entry of an aggregated error.
	Details []string
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	ErrCodeTokenNotFound   ErrorCode = ErrorCode(token.CodeNotFound)
	ErrCodeTokenNotAllowed ErrorCode = ErrorCode(token.CodeNotAllowed)

	// ErrCodeInvalidFilter indicates conditions over non-filterable tokens
	// or with operations their type does not accept.
	ErrCodeInvalidFilter ErrorCode = "INVALID_FILTER"

	// ErrCodeInvalidOrder indicates non-orderable sort keys.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// ErrCodeInvalidColumn indicates non-selectable columns.
	ErrCodeInvalidColumn ErrorCode = "INVALID_COLUMN"

	// ErrCodeShapeMismatch indicates an operator received rows of the wrong
	// shape. It is a programming error upstream, never a data condition.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	ErrCodeUnsupportedPagination ErrorCode = "UNSUPPORTED_PAGINATION"
	ErrCodeUnsupportedAggregate  ErrorCode = "UNSUPPORTED_AGGREGATE"

	// ErrCodeInvalidValue indicates a filter value or request parameter that
	// cannot be used as given.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	ErrCodeQueryNotFound   ErrorCode = "QUERY_NOT_FOUND"
	ErrCodeUniqueViolation ErrorCode = "UNIQUE_VIOLATION"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg += ":\n" + strings.Join(e.Details, "\n")
	}
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, msg, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// IsTokenError reports a token that could not be resolved, used or
// authorized, raised either by the token layer or by the pipeline.
func IsTokenError(err error) bool {
	var te *token.Error
	if errors.As(err, &te) {
		return true
	}
	return hasCode(err, ErrCodeTokenNotFound, ErrCodeTokenNotAllowed)
}

// IsValidationError reports an aggregated capability or value error.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeInvalidFilter, ErrCodeInvalidOrder, ErrCodeInvalidColumn, ErrCodeInvalidValue)
}

// IsShapeMismatch reports a SHAPE_MISMATCH error.
func IsShapeMismatch(err error) bool {
	return hasCode(err, ErrCodeShapeMismatch)
}

// CodeOf returns the code of the first QueryError in err's chain, mapping
// token errors to their codes. ok is false for other errors.
func CodeOf(err error) (ErrorCode, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code, true
	}
	var te *token.Error
	if errors.As(err, &te) {
		return ErrorCode(te.Code), true
	}
	return "", false
}

func hasCode(err error, codes ...ErrorCode) bool {
	var qe *QueryError
	if !errors.As(err, &qe) {
		return false
	}
	for _, c := range codes {
		if qe.Code == c {
			return true
		}
	}
	return false
}

// invalid aggregates reasons into one error, or returns nil when there are
// none.
func invalid(code ErrorCode, what string, reasons []string) error {
	if len(reasons) == 0 {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf("%d invalid %s", len(reasons), what),
		Details: reasons,
	}
}

func shapeMismatch(format string, args ...any) error {
	return &QueryError{Code: ErrCodeShapeMismatch, Message: fmt.Sprintf(format, args...)}
}
