package errors

import "strings"

// Classification is by message text rather than driver error codes so the
// same mapping works across SQLite drivers.

// IsBusyMessage reports whether a driver error message indicates lock
// contention that is safe to retry.
func IsBusyMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "database is locked") ||
		strings.Contains(m, "database table is locked") ||
		strings.Contains(m, "database schema is locked") ||
		strings.Contains(m, "database is busy")
}

// ClassifyQueryMessage maps a driver error message from statement execution
// to the closest query error code.
func ClassifyQueryMessage(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "syntax error"):
		return CodeSyntaxError
	case strings.Contains(m, "constraint failed") || strings.Contains(m, "constraint violation"):
		return CodeConstraintViolation
	case IsBusyMessage(m):
		return CodeBusy
	case strings.Contains(m, "expected") && strings.Contains(m, "arguments"):
		return CodeBindingMismatch
	case strings.Contains(m, "interrupted") || strings.Contains(m, "deadline exceeded"):
		return CodeTimeout
	default:
		return CodeExecutionFailed
	}
}

// ClassifyOpenMessage maps a driver error message from opening a database
// to the closest open error code.
func ClassifyOpenMessage(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "not a database") || strings.Contains(m, "file is encrypted"):
		return CodeCorrupt
	case IsBusyMessage(m):
		return CodeLocked
	case strings.Contains(m, "permission denied") || strings.Contains(m, "readonly database") ||
		strings.Contains(m, "access is denied"):
		return CodePermissionDenied
	case strings.Contains(m, "unable to open database") || strings.Contains(m, "no such file") ||
		strings.Contains(m, "not a directory") || strings.Contains(m, "is a directory"):
		return CodePathInvalid
	default:
		return CodeOpenFailed
	}
}
