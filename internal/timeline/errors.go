package timeline

import "errors"

// Error kinds per spec §7.
var (
	ErrNotFound          = errors.New("timeline: not found")
	ErrDuplicateTimeline = errors.New("timeline: duplicate timeline")
	ErrDuplicateTrack    = errors.New("timeline: duplicate track")
	ErrInvalidSpeed      = errors.New("timeline: invalid playback speed")
	ErrNoActiveTimeline  = errors.New("timeline: no active timeline")
)
