// Package errors defines the application error taxonomy shared by services,
// adapters and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthorized indicates a missing or rejected caller credential.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeInvalidCredential covers every failed PIN verification.
	ErrCodeInvalidCredential ErrorCode = "invalid_credential"
	// ErrCodeStorageCorrupt marks an unreadable or inconsistent session record.
	ErrCodeStorageCorrupt ErrorCode = "storage_corrupt"
	// ErrCodeRemoteSignOut marks a failed revocation of the server-side credential.
	ErrCodeRemoteSignOut ErrorCode = "remote_sign_out_failure"
	// ErrCodeAutoExitUpdate marks a failed system close of open visits.
	ErrCodeAutoExitUpdate ErrorCode = "auto_exit_update_failure"
	// ErrCodeAuditLog marks a failed audit delivery.
	ErrCodeAuditLog ErrorCode = "audit_log_failure"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Code == e.Code
}

// ErrInvalidCredential is returned for every failed PIN login. Callers must
// not be able to tell an unknown PIN from a disabled account.
var ErrInvalidCredential = &AppError{Code: ErrCodeInvalidCredential}

// InvalidCredential returns the single public login failure.
func InvalidCredential() *AppError {
	return &AppError{Code: ErrCodeInvalidCredential, Message: "invalid PIN"}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// StorageCorrupt wraps a decode or consistency failure of a stored session.
func StorageCorrupt(err error, slot string) *AppError {
	return &AppError{Code: ErrCodeStorageCorrupt, Message: "corrupt session record in slot " + slot, Cause: err}
}

// RemoteSignOutFailure wraps a failed credential revocation.
func RemoteSignOutFailure(err error) *AppError {
	return Wrap(err, ErrCodeRemoteSignOut, "remote sign-out failed")
}

// AutoExitUpdateFailure wraps a failed bulk close of open visits.
func AutoExitUpdateFailure(err error) *AppError {
	return Wrap(err, ErrCodeAutoExitUpdate, "auto-exit update failed")
}

// AuditLogFailure wraps a failed audit delivery.
func AuditLogFailure(err error) *AppError {
	return Wrap(err, ErrCodeAuditLog, "audit log delivery failed")
}

// IsAppError reports whether err carries code.
func IsAppError(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return IsAppError(err, ErrCodeNotFound) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return IsAppError(err, ErrCodeValidation) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return IsAppError(err, ErrCodeConflict) }

// IsInvalidCredential checks if an error is a failed PIN login.
func IsInvalidCredential(err error) bool { return IsAppError(err, ErrCodeInvalidCredential) }

// IsAutoExitUpdateFailure checks if an error is a failed auto-exit update.
func IsAutoExitUpdateFailure(err error) bool { return IsAppError(err, ErrCodeAutoExitUpdate) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
