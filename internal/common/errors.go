package common

import (
	"errors"
	"fmt"
)

// AppError classifies an error under one of the package sentinels while
// keeping the underlying cause in the chain. errors.Is matches both.
type AppError struct {
	Kind    error // one of the sentinel errors below
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Domain/state errors for the approval workflow. These map to user-visible
// rejections, never to corrupted state.
var (
	ErrTerminalRequest = errors.New("request is already finalized")
	ErrWrongApprover   = errors.New("actor does not hold the role required for the current approval level")
	ErrNotApproved     = errors.New("request is not approved")
)

func NewAppError(kind error, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func WrapError(kind error, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}
