package repository

import (
	"errors"
	"fmt"
)

// ErrorKind classifies local persistence failures
type ErrorKind string

const (
	KindSerialization ErrorKind = "serialization"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindCorrupt       ErrorKind = "corrupt"
	KindBackend       ErrorKind = "backend"
	KindUnknownKey    ErrorKind = "unknown_key"
)

// StorageError is returned by DocumentRepository for every failure
type StorageError struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("document %q: %s", e.Key, e.Kind)
	}
	return fmt.Sprintf("document %q: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first StorageError in err's chain, or ""
// when there is none.
func KindOf(err error) ErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func storageErr(kind ErrorKind, key string, err error) error {
	return &StorageError{Kind: kind, Key: key, Err: err}
}
