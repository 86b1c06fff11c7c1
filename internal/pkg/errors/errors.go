package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeDatabase       = "DATABASE_ERROR"
	ErrCodeTransientStore = "TRANSIENT_STORE"
	ErrCodeUserCallback   = "USER_CALLBACK_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeNotRegistered  = "MONITOR_NOT_REGISTERED"
	ErrCodeQueue          = "QUEUE_ERROR"
	ErrCodeFatal          = "FATAL"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Common error constructors

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// TransientStore creates an error for connection acquire or query timeouts.
// The surrounding transaction boundary is expected to retry
func TransientStore(message string, err error) *AppError {
	return Wrap(err, ErrCodeTransientStore, message, http.StatusServiceUnavailable)
}

// UserCallback creates an error for failures raised from monitor callbacks
func UserCallback(monitorName string, err error) *AppError {
	return Wrap(err, ErrCodeUserCallback,
		fmt.Sprintf("monitor '%s' callback failed", monitorName),
		http.StatusInternalServerError)
}

// Timeout creates an error for handlers that exceeded their bound
func Timeout(what string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out", what), http.StatusGatewayTimeout)
}

// NotRegistered creates an error for messages referencing an unknown monitor
func NotRegistered(monitorID int64) *AppError {
	return New(ErrCodeNotRegistered,
		fmt.Sprintf("monitor '%d' not registered", monitorID),
		http.StatusNotFound)
}

// QueueError creates a queue transport error
func QueueError(message string, err error) *AppError {
	return Wrap(err, ErrCodeQueue, message, http.StatusServiceUnavailable)
}

// Fatal creates an error that must refuse startup
func Fatal(message string, err error) *AppError {
	return Wrap(err, ErrCodeFatal, message, http.StatusInternalServerError)
}
