package response

import (
	"time"

	"dremio-gateway/internal/utils"
)

// StandardResponse represents a standardized API response
type StandardResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlationId"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ErrorInfo represents error information in responses
type ErrorInfo struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SuccessResponse creates a successful response
func SuccessResponse(data interface{}, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success:       true,
		Data:          data,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// ErrorResponse creates an error response
func ErrorResponse(code, message, details, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// ErrorResponseFromError renders err, attaching remediation hints for
// connection taxonomy codes. It returns the HTTP status alongside.
func ErrorResponseFromError(err error, correlationID string) (int, *StandardResponse) {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.NewErrorBuilder(utils.ErrCodeInternalError).WithCause(err).Build()
	}

	resp := ErrorResponse(appErr.Code, appErr.Message, appErr.Details, correlationID)
	if kind := appErr.Kind(); appErr.Code == string(kind) {
		resp.Error.Suggestions = utils.SuggestionsFor(kind)
	}
	return utils.GetErrorStatus(appErr), resp
}

// ValidationErrorResponse creates a validation error response
func ValidationErrorResponse(message, details, correlationID string) *StandardResponse {
	return ErrorResponse(utils.ErrCodeValidationFailed, message, details, correlationID)
}

// InternalServerErrorResponse creates an internal server error response
func InternalServerErrorResponse(correlationID string) *StandardResponse {
	return ErrorResponse(utils.ErrCodeInternalError, "An internal error occurred", "", correlationID)
}

// UnauthorizedResponse creates an unauthorized error response
func UnauthorizedResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Unauthorized access"
	}
	return ErrorResponse(utils.ErrCodeUnauthorized, message, "", correlationID)
}

// ForbiddenResponse creates a forbidden error response
func ForbiddenResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Forbidden access"
	}
	return ErrorResponse(utils.ErrCodeForbidden, message, "", correlationID)
}
