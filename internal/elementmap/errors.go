package elementmap

import "errors"

var (
	// ErrMalformedMap is returned when the YAML element map does not
	// match the {name, pen, id, length} shape spec.md section 6 requires.
	ErrMalformedMap = errors.New("malformed element map")
	// ErrMissingBinding is returned when a registered field has no entry
	// in the loaded element map, a fatal configuration error per spec.md
	// section 7.
	ErrMissingBinding = errors.New("field has no element map binding")
)
