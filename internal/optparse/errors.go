package optparse

import "errors"

var (
	ErrInvalidOption      = errors.New("invalid option registration")
	ErrUnknownOption      = errors.New("unknown option")
	ErrMissingArgument    = errors.New("missing argument")
	ErrUnexpectedArgument = errors.New("unexpected argument")
)
