package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers. Each code is a distinct, stable failure kind.
const (
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeConflict             = "CONFLICT"
	CodeSessionAlreadyActive = "SESSION_ALREADY_ACTIVE"
	CodeSessionActive        = "SESSION_ACTIVE"
	CodeDuplicateReview      = "DUPLICATE_REVIEW"
	CodeUnknownSubject       = "UNKNOWN_SUBJECT"
	CodeBlobWriteFailed      = "BLOB_WRITE_FAILED"
	CodeAlreadyProvisioned   = "ALREADY_PROVISIONED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// HasCode reports whether err, or anything it wraps, is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrSessionAlreadyActive() *AppError {
	return &AppError{Code: CodeSessionAlreadyActive, Message: "an active session already exists for this api key", Status: 409}
}

func ErrSessionActive(sessionID string) *AppError {
	return &AppError{Code: CodeSessionActive, Message: fmt.Sprintf("session %s has not been closed", sessionID), Status: 409}
}

func ErrDuplicateReview() *AppError {
	return &AppError{Code: CodeDuplicateReview, Message: "reviewer has already submitted a verdict for this subject", Status: 409}
}

func ErrUnknownSubject(sessionID, target string) *AppError {
	return &AppError{
		Code:    CodeUnknownSubject,
		Message: fmt.Sprintf("no analysis record for session %s and player %s", sessionID, target),
		Status:  422,
	}
}

func ErrBlobWriteFailed(cause error) *AppError {
	return &AppError{Code: CodeBlobWriteFailed, Message: "failed to persist demo blob", Status: 500, Cause: cause}
}

func ErrAlreadyProvisioned(steamID string) *AppError {
	return &AppError{Code: CodeAlreadyProvisioned, Message: fmt.Sprintf("api key already provisioned for %s", steamID), Status: 409}
}

func ErrRateLimited() *AppError {
	return &AppError{Code: CodeRateLimited, Message: "too many requests", Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
