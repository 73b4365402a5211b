package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRetryTarget is returned when retrying a conversation whose
	// last assistant turn did not fail.
	ErrNoRetryTarget = errors.New("no failed assistant message to retry")

	// ErrSessionTerminal is returned when mutating a completed or
	// discarded session. Terminal sessions are immutable.
	ErrSessionTerminal = errors.New("session is already completed or discarded")

	// ErrDraftMissing is returned when accepting a session that has no
	// committed draft version to promote.
	ErrDraftMissing = errors.New("session has no committed draft version")

	// ErrSummaryInFlight is returned when a second summarize request
	// arrives while one is still pending for the same session.
	ErrSummaryInFlight = errors.New("summary generation already in flight")

	// ErrNotReady is returned when drafting is requested before both
	// generation parameters are set.
	ErrNotReady = errors.New("writing style and length preference must be set before drafting")
)

// ValidationError marks rejected caller input, as opposed to a failed
// dependency or a broken invariant. The HTTP layer maps it to a 400.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

func validationErrorf(format string, args ...any) error {
	return ValidationError(fmt.Sprintf(format, args...))
}
