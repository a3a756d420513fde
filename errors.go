package bkmark

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeUnrecognized  = "UNRECOGNIZED_EVENT"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// Error is a coded error carried across the repository and handler
// boundaries. The code decides retryability: AlreadyExists and Validation
// are never retried, Upstream is left to infrastructure redelivery.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded error wrapping an underlying cause.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func NotFoundError(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message}
}

func AlreadyExistsError(message string) *Error {
	return &Error{Code: ErrCodeAlreadyExists, Message: message}
}

func ValidationError(message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message}
}

func ConflictError(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

func UpstreamError(message string, err error) *Error {
	return &Error{Code: ErrCodeUpstream, Message: message, Err: err}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsAlreadyExists reports whether err is a uniqueness violation.
func IsAlreadyExists(err error) bool {
	return hasCode(err, ErrCodeAlreadyExists)
}

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsConflict reports whether err is a lost conditional write, which the
// caller may retry with a fresh read.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}
