package audit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecordNotFound is returned by point lookups for unknown record ids.
	ErrRecordNotFound = errors.New("audit: record not found")

	ErrNotConfigured = errors.New("audit: repository not configured")
)

// ValidationError reports the mandatory fields that were missing or malformed.
// Validation runs before any I/O; a record failing it is never persisted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("audit: invalid record: %s", strings.Join(e.Fields, ", "))
}

// IsValidation reports whether err is a caller-input failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a store failure. The engine never swallows these;
// a failed audit write is always visible to the caller that requested it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("audit: store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err originated in the audit store.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
