package domain

import (
	"errors"
	"fmt"
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

// Error codes shared by handlers and tests.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeExpired           = "EXPIRED"
	CodeExternalService   = "EXTERNAL_SERVICE_FAILURE"
	CodeInternal          = "INTERNAL_ERROR"
)

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

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: CodeInsufficientFunds, Message: "insufficient wallet balance", Status: 400}
}

func ErrExpired(msg string) *AppError {
	return &AppError{Code: CodeExpired, Message: msg, Status: 410}
}

func ErrExternalService(msg string, cause error) *AppError {
	return &AppError{Code: CodeExternalService, Message: msg, Status: 502, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
