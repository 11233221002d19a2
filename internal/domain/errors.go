package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed request or record.
	ErrValidation = errors.New("validation failed")
	// ErrEncoding signals that the embedding model could not encode an input.
	ErrEncoding = errors.New("encoding failed")
	// ErrStore signals a document store failure, see StoreError.
	ErrStore = errors.New("store error")
	// ErrDocumentNotFound signals a missing document row.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyIndex signals an attempt to build an index from zero embeddings.
	ErrEmptyIndex = errors.New("empty index")
	// ErrIndexUnavailable signals that no index snapshot has been built yet.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrVectorDimMismatch signals a vector whose length differs from the configured dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrMalformedVector signals a vector with NaN or infinite components.
	ErrMalformedVector = errors.New("malformed vector")
	// ErrModelVersionMismatch signals embeddings produced by a different model version.
	ErrModelVersionMismatch = errors.New("embedding model version mismatch")
)

// StoreError wraps ErrStore with the failed operation and its retry class.
type StoreError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s: %s (%s): %v", ErrStore.Error(), e.Op, class, e.Err)
}

// Is matches ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a StoreError.
func NewStoreError(op string, transient bool, err error) error {
	return &StoreError{Op: op, Transient: transient, Err: err}
}

// IsTransient reports whether err is a store error worth retrying.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Transient
}
