package preset

import "errors"

// Error kinds per spec §7.
var (
	ErrNotFound   = errors.New("preset: definition not found")
	ErrNoTargets  = errors.New("preset: no targets specified")
)
