package flowrecord

import "errors"

// ErrInvalidPluginSpec is returned when a plugin's declared context
// layout or a record's enabled-plugin set is malformed.
var ErrInvalidPluginSpec = errors.New("invalid plugin context layout")
