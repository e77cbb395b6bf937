package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no open conversation exists for the requested key.
	ErrNotFound = errors.New("conversation not found")

	// ErrClosed means the conversation already reached its terminal state.
	ErrClosed = errors.New("conversation already closed")

	// ErrStillAutomated means a claim was attempted before the bot released
	// the conversation to the waiting queue.
	ErrStillAutomated = errors.New("conversation is still in automation")
)

// ConflictError is returned when a mutation violates the at-most-one-owner
// guard. It names the current holder so the caller can surface it.
type ConflictError struct {
	Holder string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conversation already assigned to %s", e.Holder)
}

// ConflictHolder extracts the current holder from a conflict error, if any.
func ConflictHolder(err error) (string, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Holder, true
	}
	return "", false
}
