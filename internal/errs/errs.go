// Package errs defines the core error taxonomy used across the memory
// engine (spec §7): a small set of kinds, not a type per failure site.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the taxonomy of errors the core can surface.
type Kind string

const (
	KindConfig      Kind = "config"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindStorage     Kind = "storage"
	KindEmbedding   Kind = "embedding"
	KindProvider    Kind = "provider"
	KindSecurity    Kind = "security"
	KindRateLimited Kind = "rate_limited"
)

// Error wraps an underlying cause with a taxonomy Kind and a message.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	RetryAfter int // seconds; only meaningful for KindRateLimited
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Config(msg string, cause error) *Error     { return new_(KindConfig, msg, cause) }
func Validation(msg string, cause error) *Error { return new_(KindValidation, msg, cause) }
func NotFound(msg string, cause error) *Error   { return new_(KindNotFound, msg, cause) }
func Conflict(msg string, cause error) *Error   { return new_(KindConflict, msg, cause) }
func Storage(msg string, cause error) *Error    { return new_(KindStorage, msg, cause) }
func Embedding(msg string, cause error) *Error  { return new_(KindEmbedding, msg, cause) }
func Security(msg string, cause error) *Error   { return new_(KindSecurity, msg, cause) }

func Provider(msg string, cause error, retryable bool) *Error {
	e := new_(KindProvider, msg, cause)
	if retryable {
		e.Message = msg + " (retryable)"
	}
	return e
}

func RateLimited(msg string, retryAfterSeconds int) *Error {
	e := new_(KindRateLimited, msg, nil)
	e.RetryAfter = retryAfterSeconds
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
