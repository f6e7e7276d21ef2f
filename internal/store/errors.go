package store

import "errors"

var (
	// ErrNotFound is returned when a requested event is not stored.
	ErrNotFound = errors.New("event not found")

	// ErrNotReplaceable is returned when a replaceable lookup names a kind
	// that is neither replaceable nor addressable.
	ErrNotReplaceable = errors.New("kind is not replaceable")
)
