package fieldregistry

import "errors"

var (
	// ErrDuplicateField is returned when the same (group, name) pair is
	// registered twice. Per spec.md section 4.1, this is a fatal
	// configuration error.
	ErrDuplicateField = errors.New("field already registered")

	// ErrCapacityExceeded is returned when registration would assign a
	// bit index at or beyond MaxBitIndex.
	ErrCapacityExceeded = errors.New("field registry bit index capacity exceeded")
)
