package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
// Code is the stable taxonomy key callers localise; Message is a developer-facing hint.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same taxonomy code, so clones of a sentinel
// still satisfy errors.Is against it.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors forming the identity taxonomy.
var (
	ErrUnauthorized     = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden        = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInvalidToken     = New("INVALID_TOKEN", http.StatusNotFound, "invitation token not found")
	ErrAlreadyClaimed   = New("ALREADY_CLAIMED", http.StatusConflict, "student profile already claimed")
	ErrInviteExpired    = New("INVITE_EXPIRED", http.StatusGone, "invitation expired")
	ErrRelationNotFound = New("RELATION_NOT_FOUND", http.StatusNotFound, "student relation not found")
	ErrProfileNotFound  = New("PROFILE_NOT_FOUND", http.StatusNotFound, "profile not found")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTooManyAttempts  = New("TOO_MANY_ATTEMPTS", http.StatusTooManyRequests, "too many failed claim attempts")
	ErrStoreFailure     = New("STORE_FAILURE", http.StatusInternalServerError, "something went wrong")
)

// Store wraps an unexpected persistence failure. The cause is kept for logs only;
// the message is always the generic one regardless of what failed.
func Store(err error) *Error {
	return Wrap(err, ErrStoreFailure.Code, ErrStoreFailure.Status, ErrStoreFailure.Message)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Store(err)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
