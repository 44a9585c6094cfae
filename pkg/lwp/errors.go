package lwp

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame indicates the frame is too short for its message type.
	ErrShortFrame = errors.New("short frame")
	// ErrLengthMismatch indicates the length byte exceeds the received bytes.
	ErrLengthMismatch = errors.New("frame length mismatch")
)

// UnexpectedMessageError is returned when a frame is decoded as
// a message type it doesn't carry.
type UnexpectedMessageError struct {
	Expected MessageType
	Actual   MessageType
}

// Error implements error.
func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("expect %v, got %v", e.Expected, e.Actual)
}
