package model

import (
	"errors"
	"fmt"
)

// ValidationError reports bad caller input. No state change happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports that a referenced record does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// WriteConflictError is returned when the store refused a commit because
// another connection held the write lock. Retrying is safe.
type WriteConflictError struct {
	Err error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict: %v", e.Err)
}

func (e *WriteConflictError) Unwrap() error { return e.Err }

// StorageIOError wraps any other failure of the underlying store.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// StoreOpenError is returned when a store file cannot be opened for use.
type StoreOpenError struct {
	Path string
	Err  error
}

func (e *StoreOpenError) Error() string {
	return fmt.Sprintf("open store %s: %v", e.Path, e.Err)
}

func (e *StoreOpenError) Unwrap() error { return e.Err }

// UnsupportedSchemaVersionError means no migration can bridge the on-disk
// schema version to the one this build expects. It is fatal.
type UnsupportedSchemaVersionError struct {
	Path   string
	Found  int64
	Target int64
}

func (e *UnsupportedSchemaVersionError) Error() string {
	return fmt.Sprintf("store %s has schema version %d, want %d", e.Path, e.Found, e.Target)
}

// MigrationError is returned when a migration step failed. The original
// store is left as it was.
type MigrationError struct {
	From int64
	To   int64
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %d -> %d: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
