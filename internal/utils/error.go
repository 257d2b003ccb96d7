package utils

import (
	"errors"
	"fmt"
	"net/http"

	"dremio-gateway/internal/model"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"

	// Query errors
	ErrCodeQueryFailed      = "QUERY_FAILED"
	ErrCodeNoProtocols      = "NO_PROTOCOLS"
	ErrCodeReadOnlyViolated = "READ_ONLY_VIOLATION"

	// Connection taxonomy, one code per model.ErrorKind
	ErrCodeConfiguration           = string(model.KindConfigurationError)
	ErrCodeInvalidToken            = string(model.KindInvalidToken)
	ErrCodeInsufficientPermissions = string(model.KindInsufficientPermissions)
	ErrCodeMissingToken            = string(model.KindMissingToken)
	ErrCodeNegotiationFailure      = string(model.KindUnrecoverableNegotiationFailure)
	ErrCodeDriverNotFound          = string(model.KindDriverNotFound)
	ErrCodeTimeout                 = string(model.KindTimeout)
	ErrCodeConnectionRefused       = string(model.KindConnectionRefused)
	ErrCodeUnclassified            = string(model.KindUnclassified)
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,

	ErrCodeQueryFailed:      http.StatusBadGateway,
	ErrCodeNoProtocols:      http.StatusBadRequest,
	ErrCodeReadOnlyViolated: http.StatusForbidden,

	ErrCodeConfiguration:           http.StatusBadRequest,
	ErrCodeInvalidToken:            http.StatusUnauthorized,
	ErrCodeInsufficientPermissions: http.StatusForbidden,
	ErrCodeMissingToken:            http.StatusUnauthorized,
	ErrCodeNegotiationFailure:      http.StatusBadGateway,
	ErrCodeDriverNotFound:          http.StatusServiceUnavailable,
	ErrCodeTimeout:                 http.StatusGatewayTimeout,
	ErrCodeConnectionRefused:       http.StatusBadGateway,
	ErrCodeUnclassified:            http.StatusBadGateway,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind returns the taxonomy kind for connection errors, or Unclassified.
func (e *AppError) Kind() model.ErrorKind {
	for _, kind := range model.ErrorKinds() {
		if string(kind) == e.Code {
			return kind
		}
	}
	return model.KindUnclassified
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

// WithMessagef sets a formatted error message
func (eb *ErrorBuilder) WithMessagef(format string, args ...interface{}) *ErrorBuilder {
	eb.message = fmt.Sprintf(format, args...)
	return eb
}

// WithDetails sets the error details
func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}

	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeForbidden:          "Access forbidden",
		ErrCodeNotFound:           "Resource not found",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",

		ErrCodeQueryFailed:      "Query execution failed",
		ErrCodeNoProtocols:      "No usable protocols",
		ErrCodeReadOnlyViolated: "Only read-only statements are allowed",

		ErrCodeConfiguration:           "Connection configuration is incomplete",
		ErrCodeInvalidToken:            "Access token was rejected",
		ErrCodeInsufficientPermissions: "Access token lacks the required permissions",
		ErrCodeMissingToken:            "A personal access token is required",
		ErrCodeNegotiationFailure:      "Transport negotiation failed",
		ErrCodeDriverNotFound:          "Driver not found",
		ErrCodeTimeout:                 "Connection attempt timed out",
		ErrCodeConnectionRefused:       "Connection refused",
		ErrCodeUnclassified:            "Unexpected driver error",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

// NewKindError builds an AppError for a taxonomy kind
func NewKindError(kind model.ErrorKind, message string, cause error) *AppError {
	return NewErrorBuilder(string(kind)).
		WithMessage(message).
		WithCause(cause).
		Build()
}

// NewConfigurationError reports missing credential or endpoint settings
func NewConfigurationError(message string) *AppError {
	return NewKindError(model.KindConfigurationError, message, nil)
}

func NewValidationError(message string, details string) *AppError {
	return NewErrorBuilder(ErrCodeValidationFailed).
		WithMessage(message).
		WithDetails(details).
		Build()
}

// AsAppError unwraps err to the first AppError in its chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsErrorType checks if an error matches a specific error code
func IsErrorType(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}
