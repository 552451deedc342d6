package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the service and the storage adapters.
var (
	// ErrValidation indicates caller input was rejected.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced agent or facts document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates the storage backend failed an operation.
	ErrStorage = errors.New("storage failure")

	// ErrPublish indicates facts publishing failed.
	ErrPublish = errors.New("facts publishing failed")

	// ErrConnectionFailed indicates the storage backend is unreachable.
	ErrConnectionFailed = errors.New("storage connection failed")

	// ErrOperationTimeout indicates a storage operation exceeded its deadline.
	ErrOperationTimeout = errors.New("storage operation timed out")
)

// ValidationError reports a caller-fixable problem with an input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports that an agent or facts document does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError creates a StorageError.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PublishKind classifies a publishing failure.
type PublishKind string

const (
	// PublishTransient covers network errors and timeouts; a later attempt may succeed.
	PublishTransient PublishKind = "transient"

	// PublishPermanent covers rejected documents and disabled publishing.
	PublishPermanent PublishKind = "permanent"
)

// PublishError is returned by publishers. The service only logs it.
type PublishError struct {
	Kind PublishKind
	Err  error
}

// Transient wraps err as a transient publish failure.
func Transient(err error) *PublishError {
	return &PublishError{Kind: PublishTransient, Err: err}
}

// Permanent wraps err as a permanent publish failure.
func Permanent(err error) *PublishError {
	return &PublishError{Kind: PublishPermanent, Err: err}
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish (%s): %v", e.Kind, e.Err)
}

// Is matches ErrPublish.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublish
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PublishKindOf returns the failure kind of err. Errors that are not
// PublishErrors are treated as transient.
func PublishKindOf(err error) PublishKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PublishTransient
}

// ErrorKind names the taxonomy bucket of err for adapters.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
