package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the vault's failure taxonomy. Concrete errors wrap or
// match one of these so callers can branch with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("credential not found")
	ErrIntegrity          = errors.New("credential integrity check failed")
	ErrStorageTimeout     = errors.New("storage operation timed out")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrClonePartial       = errors.New("project clone partially failed")

	// ErrEncryptionKeyNotSet is returned when the vault is used without a
	// configured CREDVAULT_SECRET_KEY.
	ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set CREDVAULT_SECRET_KEY")
)

// ValidationError reports a rejected input. It never includes the rejected
// credential value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError is shorthand for &ValidationError{Field: field, Reason: reason}.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IntegrityError reports a record whose sealed value failed authentication,
// either through tampering or because it was sealed under a different key.
type IntegrityError struct {
	StorageKey string
	Err        error
}

func (e *IntegrityError) Error() string {
	if e.StorageKey == "" {
		return fmt.Sprintf("%v: %v", ErrIntegrity, e.Err)
	}
	return fmt.Sprintf("%v for %q: %v", ErrIntegrity, e.StorageKey, e.Err)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// StorageError wraps a backend failure. Timeout distinguishes a deadline
// expiry from any other I/O failure.
type StorageError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *StorageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageTimeout, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Is(target error) bool {
	if e.Timeout {
		return target == ErrStorageTimeout
	}
	return target == ErrStorageUnavailable
}

func (e *StorageError) Unwrap() error { return e.Err }

// CloneError is returned by a project clone in which at least one record
// failed. Result still lists every record that did succeed.
type CloneError struct {
	Result *CloneResult
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("%v: %d of %d records failed",
		ErrClonePartial, e.Result.Failed(), len(e.Result.Items))
}

func (e *CloneError) Is(target error) bool {
	return target == ErrClonePartial
}
