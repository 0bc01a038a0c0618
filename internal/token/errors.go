package token

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes token errors.
type ErrorCode string

const (
	// CodeNotFound indicates a path segment matches no subtoken.
	CodeNotFound ErrorCode = "TOKEN_NOT_FOUND"

	// CodeNotAllowed indicates the authorizer rejected a token.
	CodeNotAllowed ErrorCode = "TOKEN_NOT_ALLOWED"

	// CodeNotAvailable indicates a token has no expression in the current
	// row shape (an element before flattening, an aggregate before grouping).
	CodeNotAvailable ErrorCode = "TOKEN_NOT_AVAILABLE"
)

// Error reports a token that could not be resolved or used.
type Error struct {
	Code ErrorCode

	// Path is the full key being resolved.
	Path string

	// Segment is the failing step of Path, if any.
	Segment string

	Message string
}

func (e *Error) Error() string {
	if e.Segment != "" && e.Segment != e.Path {
		return fmt.Sprintf("%s: %s: segment %q: %s", e.Code, e.Path, e.Segment, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// IsNotFound reports a TOKEN_NOT_FOUND error anywhere in err's chain.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsNotAllowed reports a TOKEN_NOT_ALLOWED error anywhere in err's chain.
func IsNotAllowed(err error) bool {
	return hasCode(err, CodeNotAllowed)
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

func notAvailable(t Token, msg string) *Error {
	return &Error{Code: CodeNotAvailable, Path: t.FullKey(), Message: msg}
}
