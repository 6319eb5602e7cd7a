package domain

import (
	"errors"
	"fmt"
)

// SchemaError reports an invalid configuration document. Fatal: nothing is
// constructed from a document that fails validation.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.Path, e.Reason)
}

// ValidationError reports an invalid bulk-mutation request. Fatal: the whole
// request is rejected before any record is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request field %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing bulk-mutation target. Non-fatal: recorded
// per target, processing continues.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "List not found: " + e.ID
}

// StorageError reports a persistence failure after validation passed.
// Fatal: callers must be able to rely on no partial write being observable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SizeLimitError reports a request body exceeding the cap. Fatal: rejected
// before any parsing is attempted.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("request body exceeds %d byte limit", e.Limit)
}

// InvalidRecordError reports a feature-extraction failure for one record
// during batch scoring. Degraded: recorded as an INVALID_RECORD result, the
// batch continues.
type InvalidRecordError struct {
	RecordID string
	Reason   string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s: %s", e.RecordID, e.Reason)
}

// ErrNotFound is the sentinel for repository lookups that match nothing.
var ErrNotFound = errors.New("record not found")
