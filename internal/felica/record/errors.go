package record

import (
	"errors"
	"fmt"
)

// ErrDecode matches every DecodeError via errors.Is.
var ErrDecode = errors.New("record: decode error")

// DecodeError reports a block that cannot be turned into a record, either
// because it is not BlockSize bytes long or because a packed field holds a
// value outside its domain.
type DecodeError struct {
	Kind   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("record: decode %s: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func lengthError(kind string, n int) error {
	return &DecodeError{Kind: kind, Reason: fmt.Sprintf("block is %d bytes, want %d", n, BlockSize)}
}
