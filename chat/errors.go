package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrThreadNotFound is returned for an unknown thread id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrNotParticipant is returned when the caller is not one of the two
	// thread parties.
	ErrNotParticipant = errors.New("caller is not a participant of the thread")
)

// ValidationError rejects a request before any durable write: empty
// content, oversized or disallowed attachment, malformed participant pair.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError surfaces a blob store failure as a failed append. It is not
// retried by the core; retry, if any, is a caller concern.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
