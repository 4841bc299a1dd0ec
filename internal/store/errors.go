package store

import "github.com/pkg/errors"

var (
	// ErrNotInteger is returned by INCR when the current value cannot be
	// parsed as a base-10 integer.
	ErrNotInteger = errors.New("value is not an integer or out of range")

	// ErrWrongType is returned when a command expects a value kind the
	// key doesn't hold.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
)
