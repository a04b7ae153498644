package moderation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine surfaces to callers
type ErrorKind string

const (
	KindValidation             ErrorKind = "VALIDATION_ERROR"
	KindUnauthorized           ErrorKind = "UNAUTHORIZED"
	KindInsufficientPermission ErrorKind = "INSUFFICIENT_PERMISSIONS"
	KindRateLimitExceeded      ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindInvalidAction          ErrorKind = "MODERATION_INVALID_ACTION"
	KindConcurrentModification ErrorKind = "CONCURRENT_MODIFICATION"
	KindDatabase               ErrorKind = "DATABASE_ERROR"
)

// Sentinels for errors.Is matching against an *Error of the same kind
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrInsufficientPermission = &Error{Kind: KindInsufficientPermission}
	ErrRateLimitExceeded      = &Error{Kind: KindRateLimitExceeded}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidAction          = &Error{Kind: KindInvalidAction}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrDatabase               = &Error{Kind: KindDatabase}
)

// Error is the single error type returned by the engine
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can write errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func notFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func invalidAction(format string, args ...any) *Error {
	return newError(KindInvalidAction, format, args...)
}

// KindOf returns the kind of err, or DATABASE_ERROR for foreign errors.
// A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// asEngineError lifts store failures into the taxonomy. Errors that are
// already classified pass through untouched.
func asEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, ErrStoreBusy) {
		return &Error{Kind: KindConcurrentModification, Message: op, Err: err}
	}
	return &Error{Kind: KindDatabase, Message: op, Err: err}
}

// ErrStoreBusy is returned by store implementations when a write lost a
// lock or version race and the caller should reload and retry.
var ErrStoreBusy = errors.New("store busy")

// ConfigError represents a role directory validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "moderation config error in " + e.Field + ": " + e.Message
}
