package errors

import (
	"fmt"
	"strings"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *IndexError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *IndexError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// JobFailed wraps a worker failure for a single dispatched job.
func JobFailed(kind, target string, cause error) *IndexError {
	return Wrap(cause, ErrCodeJobFailed, fmt.Sprintf("job %s failed for '%s'", kind, target)).
		WithDetail("kind", kind).
		WithDetail("target", target)
}

// DependencyCycle reports a cycle between formula columns.
func DependencyCycle(columns []string) *IndexError {
	return New(ErrCodeDependencyCycle,
		fmt.Sprintf("formula dependency cycle between columns: %s", strings.Join(columns, " -> "))).
		WithDetail("columns", columns)
}

// EntityNotFound creates a missing path/space/context error
func EntityNotFound(kind, path string) *IndexError {
	return New(ErrCodeEntityNotFound, fmt.Sprintf("%s '%s' not found", kind, path)).
		WithDetail("kind", kind).
		WithDetail("path", path)
}

// StorageFailed wraps an error returned by the storage adapter.
func StorageFailed(op, path string, cause error) *IndexError {
	return Wrap(cause, ErrCodeStorageFailed, fmt.Sprintf("storage %s failed for '%s'", op, path)).
		WithDetail("op", op).
		WithDetail("path", path)
}

// PersistenceFailed wraps an error returned by the persistence facade.
func PersistenceFailed(op, key string, cause error) *IndexError {
	return Wrap(cause, ErrCodePersistenceFailed, fmt.Sprintf("persistence %s failed for '%s'", op, key)).
		WithDetail("op", op).
		WithDetail("key", key)
}
