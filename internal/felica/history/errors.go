package history

import (
	"errors"
	"fmt"
)

// ErrStorage matches every StorageError via errors.Is.
var ErrStorage = errors.New("history: storage error")

// StorageError aborts a session: nothing was appended to the card log and
// no annotated output was produced.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
