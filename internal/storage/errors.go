package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptStore is matched by every *CorruptStoreError.
	ErrCorruptStore = errors.New("corrupt store file")
	// ErrLockTimeout is returned when a file lock is not acquired within its timeout.
	ErrLockTimeout = errors.New("file lock timeout")
)

// CorruptStoreError reports a persisted file whose content cannot be parsed.
// A missing or empty file is never corrupt.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store file %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

func (e *CorruptStoreError) Is(target error) bool { return target == ErrCorruptStore }
