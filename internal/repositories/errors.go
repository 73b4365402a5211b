package repositories

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrActiveSessionConflict is returned when creating an evolution
	// session for a story that already has a non-terminal one.
	ErrActiveSessionConflict = errors.New("an active evolution session already exists for this story")
)
