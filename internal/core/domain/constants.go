package domain

import "errors"

// DefaultHelp is the usage text of handlers without commands.
const DefaultHelp = "This module has no commands"

var (
	ErrHandlerNotFound  = errors.New("handler not found")
	ErrStoreUnavailable = errors.New("database unavailable")
	ErrEmptyArgument    = errors.New("empty argument")
	ErrInvalidPattern   = errors.New("invalid search pattern")
	ErrInvalidNumber    = errors.New("not a number")
	ErrMalformedLine    = errors.New("malformed protocol line")
	ErrNotConnected     = errors.New("backend not connected")
	ErrMissingConfig    = errors.New("missing required setting")
)
