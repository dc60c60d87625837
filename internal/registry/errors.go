package registry

import "errors"

// Error kinds per spec §7. Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("registry: not found")
	ErrDuplicateID       = errors.New("registry: duplicate id")
	ErrDuplicateChannel  = errors.New("registry: duplicate channel")
	ErrDuplicateAlias    = errors.New("registry: duplicate alias")
	ErrChannelOutOfRange = errors.New("registry: channel out of range")
	ErrOutOfRange        = errors.New("registry: value out of range")
)
