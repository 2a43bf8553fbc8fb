// Package apperrors defines the error kinds the dashboard reports to users:
// authentication failures at startup, rejected selections, and Earth Engine
// failures during a render cycle.
package apperrors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorCode categorizes an AppError.
type ErrorCode string

const (
	CodeAuthentication   ErrorCode = "AUTHENTICATION_FAILURE"
	CodeInvalidSelection ErrorCode = "INVALID_SELECTION"
	CodeService          ErrorCode = "SERVICE_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrAuthentication   = errors.New("earth engine authentication failed")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrService          = errors.New("earth engine service error")
)

// AppError carries a code, a user-facing message, the cause and optional
// structured context for logging.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's code so callers can use errors.Is
// without caring about the cause chain.
func (e *AppError) Is(target error) bool {
	switch e.Code {
	case CodeAuthentication:
		return target == ErrAuthentication
	case CodeInvalidSelection:
		return target == ErrInvalidSelection
	case CodeService:
		return target == ErrService
	}
	return false
}

// AuthenticationFailure is fatal: the process cannot talk to Earth Engine.
func AuthenticationFailure(message string, cause error) *AppError {
	return &AppError{Code: CodeAuthentication, Message: message, Cause: cause}
}

// InvalidSelection reports a county or year the user cannot request.
func InvalidSelection(message string, context map[string]any) *AppError {
	return &AppError{Code: CodeInvalidSelection, Message: message, Context: context}
}

// ServiceError wraps a failed Earth Engine call (quota, network, bad geometry).
func ServiceError(message string, cause error, context map[string]any) *AppError {
	return &AppError{Code: CodeService, Message: message, Cause: cause, Context: context}
}

// Internal wraps errors that are neither user nor upstream mistakes.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

func IsAuthentication(err error) bool   { return errors.Is(err, ErrAuthentication) }
func IsInvalidSelection(err error) bool { return errors.Is(err, ErrInvalidSelection) }
func IsService(err error) bool          { return errors.Is(err, ErrService) }

// HTTPStatus maps an error to the status the page controller responds with.
func HTTPStatus(err error) int {
	switch {
	case IsInvalidSelection(err):
		return http.StatusBadRequest
	case IsService(err):
		return http.StatusBadGateway
	case IsAuthentication(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of an AppError anywhere in err's chain, or
// CodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// UserMessage returns the text shown on the page. Internal details stay in
// the logs.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code == CodeInternal {
			return "Something went wrong while rendering this page."
		}
		return appErr.Message
	}
	return "Something went wrong while rendering this page."
}

// LogError logs err with its code and context.
func LogError(logger *slog.Logger, err error, operation string) {
	if logger == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		args := []any{
			"operation", operation,
			"error_code", string(appErr.Code),
			"error_message", appErr.Message,
		}
		for key, value := range appErr.Context {
			args = append(args, key, value)
		}
		if appErr.Cause != nil {
			args = append(args, "cause", appErr.Cause.Error())
		}
		logger.Error("application error occurred", args...)
		return
	}

	logger.Error("unknown error occurred",
		"operation", operation,
		"error", err.Error(),
	)
}
