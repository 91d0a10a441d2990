package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a custom error code for the application
type ErrorCode string

const (
	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION_ERROR"

	// Intake errors
	ErrCodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeRateLimitCheckFailed ErrorCode = "RATE_LIMIT_CHECK_FAILED"
	ErrCodeStorageUpload        ErrorCode = "STORAGE_UPLOAD_ERROR"
	ErrCodePersistence          ErrorCode = "PERSISTENCE_ERROR"

	// Notification errors
	ErrCodeMissingTemplateField ErrorCode = "MISSING_TEMPLATE_FIELD"
	ErrCodeNotification         ErrorCode = "NOTIFICATION_ERROR"
)

// StorageFailure classifies why a proof upload was rejected
type StorageFailure string

const (
	StorageBucketMissing      StorageFailure = "BUCKET_MISSING"
	StorageAccessPolicyDenied StorageFailure = "ACCESS_POLICY_DENIED"
	StorageOther              StorageFailure = "OTHER"
)

// AppError represents a structured application error.
// Message is the short error string returned to clients, Details the
// human-readable explanation.
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Internal   error                  `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error for error chain support
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsAppError extracts an *AppError from err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an *AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Common error constructors

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

func NewValidationError(message string, details string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		StatusCode: http.StatusBadRequest,
	}
}

func NewMethodNotAllowedError() *AppError {
	return &AppError{
		Code:       ErrCodeMethodNotAllowed,
		Message:    "Method Not Allowed",
		Details:    "Only POST requests are allowed",
		StatusCode: http.StatusMethodNotAllowed,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimitExceeded,
		Message:    "Rate limit exceeded",
		Details:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewRateLimitCheckError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimitCheckFailed,
		Message:    "Failed to validate registration rate limit",
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// NewStorageUploadError builds the cause-specific upload failure shown to users
func NewStorageUploadError(cause StorageFailure, bucket string, err error) *AppError {
	var details string
	switch cause {
	case StorageBucketMissing:
		details = fmt.Sprintf("Storage setup required. Please create the %q bucket.", bucket)
	case StorageAccessPolicyDenied:
		details = "Storage permissions not configured. Please add an upload policy to the bucket."
	default:
		details = "Failed to upload screenshot. Please try again."
	}
	return (&AppError{
		Code:       ErrCodeStorageUpload,
		Message:    "Failed to upload screenshot",
		Details:    details,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}).WithMetadata("cause", cause)
}

// StorageCause returns the classified cause of a storage upload error
func (e *AppError) StorageCause() StorageFailure {
	if e.Metadata == nil {
		return ""
	}
	cause, _ := e.Metadata["cause"].(StorageFailure)
	return cause
}

// NewPersistenceError passes the store's message through to the caller
func NewPersistenceError(storeMessage string, err error) *AppError {
	return &AppError{
		Code:       ErrCodePersistence,
		Message:    storeMessage,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

func NewConfigurationError(details string) *AppError {
	return &AppError{
		Code:       ErrCodeConfiguration,
		Message:    "Failed to send email",
		Details:    details,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewMissingTemplateFieldError(fields []string) *AppError {
	return (&AppError{
		Code:       ErrCodeMissingTemplateField,
		Message:    "Missing required fields",
		Details:    "Please provide name, email, teamName, teamId, and eventName",
		StatusCode: http.StatusBadRequest,
	}).WithMetadata("fields", fields)
}

func NewNotificationError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeNotification,
		Message:    "Failed to send email",
		Details:    "The confirmation email could not be delivered. Please try again later.",
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}
