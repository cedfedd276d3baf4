package taskqueue

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrUnknownTaskType   = errors.New("unknown task type")

	// ErrNotOwner is an invalid transition attempted by a worker that no
	// longer holds the claim, typically after the task was recovered.
	ErrNotOwner = fmt.Errorf("%w: task is claimed by another worker", ErrInvalidTransition)

	// ErrPermanent marks a handler error that must not be retried.
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so the dispatcher fails the task without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
