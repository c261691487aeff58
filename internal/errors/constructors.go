package errors

import "os"

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *CoordError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *CoordError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *CoordError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Filesystem errors

func FileWriteError(path string, cause error) *CoordError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "file write failed").
		WithContext("path", path)
}

func FileReadError(path string, cause error) *CoordError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "file read failed").
		WithContext("path", path)
}

// Lock errors

func LockReleaseError(path string, cause error) *CoordError {
	return Wrap(cause, CategoryLock, SeverityError, "lock release failed").
		WithContext("path", path)
}

// State errors

func StateCorrupt(projectID, section string, cause error) *CoordError {
	return Wrap(cause, CategoryState, SeverityFatal, "persisted state is not parseable").
		WithContext("project_id", projectID).
		WithContext("section", section)
}

// ProjectNotFound wraps os.ErrNotExist so callers can test with errors.Is.
func ProjectNotFound(projectID string) *CoordError {
	return Wrap(os.ErrNotExist, CategoryState, SeverityError, "project not found").
		WithContext("project_id", projectID)
}

// SectionNotFound wraps os.ErrNotExist so callers can test with errors.Is.
func SectionNotFound(projectID, section string) *CoordError {
	return Wrap(os.ErrNotExist, CategoryState, SeverityError, "section not found").
		WithContext("project_id", projectID).
		WithContext("section", section)
}

// Audit errors

func AuditAppendError(cause error) *CoordError {
	return Wrap(cause, CategoryAudit, SeverityError, "failed to append audit entry")
}

// Internal errors

func InternalError(message string, cause error) *CoordError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
