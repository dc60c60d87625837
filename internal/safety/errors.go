package safety

import "errors"

// Error kinds per spec §7.
var (
	ErrNotFound           = errors.New("safety: not found")
	ErrInvalidTransition  = errors.New("safety: invalid transition")
	ErrSafetyViolation    = errors.New("safety: safety violation")
)
