// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-rt.
// Only configuration and lifecycle misuse travel as errors; allocation
// failures and contract violations go through the fatal facility.

package api

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common errors used across the library.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrAlreadyStarted  = errors.New("scheduler already started")
	ErrNotStarted      = errors.New("scheduler not started")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeInvalidConfig
	ErrCodeAlreadyStarted
	ErrCodeNotStarted
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap maps the code onto its sentinel so errors.Is works.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeInvalidConfig:
		return ErrInvalidConfig
	case ErrCodeAlreadyStarted:
		return ErrAlreadyStarted
	case ErrCodeNotStarted:
		return ErrNotStarted
	}
	return nil
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
