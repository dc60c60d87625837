// Package timeline implements the Timeline Engine (spec §4.5):
// keyframe tracks, easing, quantization, a 60Hz transport, and live
// recording.
package timeline

import "sort"

// Ease selects the interpolation curve applied when arriving at a
// keyframe.
type Ease int

const (
	Linear Ease = iota
	EaseIn
	EaseOut
	EaseInOut
	CubicBezier
	Bounce
	Elastic
)

func (e Ease) String() string {
	switch e {
	case EaseIn:
		return "ease_in"
	case EaseOut:
		return "ease_out"
	case EaseInOut:
		return "ease_in_out"
	case CubicBezier:
		return "cubic_bezier"
	case Bounce:
		return "bounce"
	case Elastic:
		return "elastic"
	default:
		return "linear"
	}
}

// ParseEase parses the API/JSON string form of an easing type.
func ParseEase(s string) (Ease, bool) {
	for e := Linear; e <= Elastic; e++ {
		if e.String() == s {
			return e, true
		}
	}
	return Linear, false
}

// State is the transport's playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
	Recording
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Recording:
		return "recording"
	default:
		return "stopped"
	}
}

// Point2D is a 2D control point for a cubic Bezier ease.
type Point2D struct{ X, Y float64 }

// Keyframe is a single time/value pair on a track, with the easing
// applied on arrival from the previous keyframe (spec §4.5).
type Keyframe struct {
	TimeMS    float64
	Value     float64
	Ease      Ease
	Tension   float64 // blends quad/cubic for EaseIn/Out/InOut, 0-1
	BezierCP1 Point2D
	BezierCP2 Point2D
}

// DefaultBezierCP1/CP2 match the original's defaults for CUBIC_BEZIER
// keyframes that don't specify their own control points.
var (
	DefaultBezierCP1 = Point2D{X: 0.25, Y: 0.1}
	DefaultBezierCP2 = Point2D{X: 0.25, Y: 1.0}
)

// Track is a single target's keyframe sequence (spec §4.5). Keyframes
// are kept sorted by TimeMS.
type Track struct {
	Name      string
	Target    string
	Keyframes []Keyframe
	Enabled   bool
	Solo      bool
	Muted     bool
}

// NewTrack returns an enabled, empty track for target.
func NewTrack(name, target string) *Track {
	return &Track{Name: name, Target: target, Enabled: true}
}

func (t *Track) insertSorted(kf Keyframe) {
	i := sort.Search(len(t.Keyframes), func(i int) bool { return t.Keyframes[i].TimeMS >= kf.TimeMS })
	t.Keyframes = append(t.Keyframes, Keyframe{})
	copy(t.Keyframes[i+1:], t.Keyframes[i:])
	t.Keyframes[i] = kf
}

// Marker is a named position on a timeline, used by Jump (spec §4.5).
type Marker struct {
	TimeMS float64
	Label  string
	Color  string
}

const defaultMarkerColor = "#FF6B6B"

// Timeline is a complete animation: its tracks, markers, duration, and
// loop configuration (spec §4.5).
type Timeline struct {
	Name       string
	FPS        *float64
	BPM        *float64
	DurationMS float64
	Tracks     []*Track
	Markers    []Marker

	Loop      bool
	LoopStart float64
	LoopEnd   float64
}

// NewTimeline builds a timeline with the original's defaults: fps=30
// when neither fps nor bpm is given, loop end defaulting to the full
// duration.
func NewTimeline(name string, fps, bpm *float64, durationMS float64) *Timeline {
	if durationMS <= 0 {
		durationMS = 10000
	}
	tl := &Timeline{Name: name, FPS: fps, BPM: bpm, DurationMS: durationMS, LoopEnd: durationMS}
	if tl.FPS == nil && tl.BPM == nil {
		thirty := 30.0
		tl.FPS = &thirty
	}
	return tl
}

// TimebaseMS returns the nominal interval, in milliseconds, between
// frames/steps: 1000/fps if fps is set, 60000/(bpm*4) (16th-note
// resolution in 4/4 time) if only bpm is set, else a 30fps fallback.
func (tl *Timeline) TimebaseMS() float64 {
	if tl.FPS != nil {
		return 1000.0 / *tl.FPS
	}
	if tl.BPM != nil {
		return 60000.0 / (*tl.BPM * 4)
	}
	return 1000.0 / 30.0
}

func (tl *Timeline) findTrack(name string) *Track {
	for _, t := range tl.Tracks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (tl *Timeline) findTrackByTarget(target string) *Track {
	for _, t := range tl.Tracks {
		if t.Target == target {
			return t
		}
	}
	return nil
}
