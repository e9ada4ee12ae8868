// Package errors provides structured error types for litekeep.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by library component.
type ErrorCategory string

const (
	ErrCategoryConn       ErrorCategory = "CONN"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryBackup     ErrorCategory = "BACKUP"
	ErrCategoryRestore    ErrorCategory = "RESTORE"
	ErrCategoryIntegrity  ErrorCategory = "INTEGRITY"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Connection codes
	CodePathInvalid      = "PATH_INVALID"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeLocked           = "LOCKED"
	CodeCorrupt          = "CORRUPT"
	CodeOpenFailed       = "OPEN_FAILED"

	// Query codes
	CodeSyntaxError         = "SYNTAX_ERROR"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeBindingMismatch     = "BINDING_MISMATCH"
	CodeBusy                = "BUSY"
	CodeTimeout             = "TIMEOUT"
	CodeExecutionFailed     = "EXECUTION_FAILED"

	// Schema codes
	CodeTableNotFound = "TABLE_NOT_FOUND"
	CodeTableExists   = "TABLE_EXISTS"

	// Validation codes
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidSpec       = "INVALID_SPEC"
	CodeInvalidFetchMode  = "INVALID_FETCH_MODE"
	CodeInvalidOptions    = "INVALID_OPTIONS"

	// Backup codes
	CodeSourceMissing      = "SOURCE_MISSING"
	CodeDestExists         = "DEST_EXISTS"
	CodeCompressionFailed  = "COMPRESSION_FAILED"
	CodeVerificationFailed = "VERIFICATION_FAILED"
	CodeCopyFailed         = "COPY_FAILED"

	// Restore codes
	CodeCorruptSource = "CORRUPT_SOURCE"
	CodeWriteFailed   = "WRITE_FAILED"

	// Integrity codes
	CodeUnreadable = "UNREADABLE"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeConfigIO      = "CONFIG_IO"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeListFailed     = "LIST_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// LitekeepError is the structured error type used throughout the library.
type LitekeepError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *LitekeepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LitekeepError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *LitekeepError) Is(target error) bool {
	var t *LitekeepError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new LitekeepError.
func New(category ErrorCategory, code, message string) *LitekeepError {
	return &LitekeepError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new LitekeepError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LitekeepError {
	return &LitekeepError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *LitekeepError) WithDetails(details map[string]interface{}) *LitekeepError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var le *LitekeepError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LitekeepError.
func GetCategory(err error) ErrorCategory {
	var le *LitekeepError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LitekeepError.
func GetCode(err error) string {
	var le *LitekeepError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// isRetryable determines if an error code is transient. Only lock contention
// qualifies: a busy database, an open blocked by another handle's lock, or a
// timeout spent waiting on one. Everything else is terminal for the
// operation that produced it.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryQuery && code == CodeBusy:
		return true
	case category == ErrCategoryQuery && code == CodeTimeout:
		return true
	case category == ErrCategoryConn && code == CodeLocked:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewOpenError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryConn, code, message, cause)
}

func NewSchemaError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategorySchema, code, message, cause)
}

func NewQueryError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewBackupError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryBackup, code, message, cause)
}

func NewRestoreError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryRestore, code, message, cause)
}

func NewIntegrityError(message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryIntegrity, CodeUnreadable, message, cause)
}

func NewValidationError(code, message string) *LitekeepError {
	return New(ErrCategoryValidation, code, message)
}

func NewConfigError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryConfig, code, message, cause)
}

func NewStorageError(code, message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *LitekeepError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
