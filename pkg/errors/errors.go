package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("resource conflict")
	ErrInternal          = errors.New("internal server error")
	ErrValidation        = errors.New("validation error")
	ErrAlreadyFinalized  = errors.New("batch already finalized")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrWriteConflict     = errors.New("write conflict")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// DuplicateBatchNumber is returned when a batch number already exists,
// in either draft or finalized state.
func DuplicateBatchNumber(batchNumber string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "DUPLICATE_BATCH_NUMBER",
		Message:    fmt.Sprintf("batch number %q already exists", batchNumber),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"batch_number": batchNumber},
	}
}

// AlreadyFinalized is returned when finalize is called on a batch
// that is no longer a draft.
func AlreadyFinalized(batchNumber string) *AppError {
	return &AppError{
		Err:        ErrAlreadyFinalized,
		Code:       "ALREADY_FINALIZED",
		Message:    fmt.Sprintf("batch %q is already finalized", batchNumber),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"batch_number": batchNumber},
	}
}

// InsufficientStock is returned when a discard requests more quantity
// than is available across eligible batches. No partial discard is applied.
func InsufficientStock(medicineID int64, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("requested %d units of medicine %d but only %d available", requested, medicineID, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"medicine_id": fmt.Sprintf("%d", medicineID),
			"requested":   fmt.Sprintf("%d", requested),
			"available":   fmt.Sprintf("%d", available),
		},
	}
}

// WriteConflict is returned when a concurrent mutation changed a batch
// between read and write. Callers may retry a bounded number of times.
func WriteConflict(batchNumber string) *AppError {
	return &AppError{
		Err:        ErrWriteConflict,
		Code:       "WRITE_CONFLICT",
		Message:    fmt.Sprintf("batch %q was modified concurrently, retry the operation", batchNumber),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"batch_number": batchNumber},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
