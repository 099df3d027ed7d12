package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code so callers can test against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// Password engine error codes
const (
	ErrCodeInvalidInput ErrorCode = iota + 2000
	ErrCodePolicyValidation
	ErrCodePersistence
	ErrCodeUnsatisfiable
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput        = &AppError{Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrPersistence         = &AppError{Code: ErrCodePersistence, Message: "persistence failure"}
	ErrPolicyValidation    = &AppError{Code: ErrCodePolicyValidation, Message: "policy validation failed"}
	ErrPolicyUnsatisfiable = &AppError{Code: ErrCodeUnsatisfiable, Message: "policy cannot be satisfied"}
)

// PolicyValidationError is returned when a candidate policy breaks one or
// more invariants. Violations lists every broken rule in check order.
type PolicyValidationError struct {
	Violations []string `json:"violations"`
}

func (e *PolicyValidationError) Error() string {
	return "invalid password policy: " + strings.Join(e.Violations, "; ")
}

func (e *PolicyValidationError) Is(target error) bool {
	return target == ErrPolicyValidation
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// InvalidInput reports a caller contract violation.
func InvalidInput(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// Persistence wraps a failure returned by a storage collaborator.
func Persistence(op string, err error) *AppError {
	return &AppError{
		Code:    ErrCodePersistence,
		Message: op,
		Err:     err,
	}
}

func Unsatisfiable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnsatisfiable,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// HTTPStatus maps an error to the status code handlers should respond with.
func HTTPStatus(err error) int {
	var pve *PolicyValidationError
	if stderrors.As(err, &pve) {
		return http.StatusUnprocessableEntity
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrCodePolicyValidation, ErrCodeUnsatisfiable:
		return http.StatusUnprocessableEntity
	case ErrCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
