// Package preset implements the Preset Engine (spec §4.4): a library of
// procedural motion generators that drive one or more registry targets
// continuously at 30Hz.
package preset

import "math/rand"

// Type selects which generator an instance runs.
type Type int

const (
	Sine Type = iota
	PingPong
	Bounce
	RandomWalk
	BezierPath
	Step
	Ripple
	Swarm
	Breath
	Twitch
	Glitch
)

func (t Type) String() string {
	switch t {
	case Sine:
		return "sine"
	case PingPong:
		return "pingpong"
	case Bounce:
		return "bounce"
	case RandomWalk:
		return "random_walk"
	case BezierPath:
		return "bezier_path"
	case Step:
		return "step"
	case Ripple:
		return "ripple"
	case Swarm:
		return "swarm"
	case Breath:
		return "breath"
	case Twitch:
		return "twitch"
	case Glitch:
		return "glitch"
	default:
		return "unknown"
	}
}

// ParseType parses the API/JSON string form of a preset type.
func ParseType(s string) (Type, bool) {
	for t := Sine; t <= Glitch; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Params mirrors PresetParams from the original generator library: a
// flat struct of knobs shared (with overlap) across all eleven
// generators, rather than a per-type parameter type, so a preset can be
// defined once and reused across generators (spec §4.4).
type Params struct {
	// Universal
	Rate   float64
	Depth  float64
	Center float64
	Loop   bool

	// Sine / swarm / glitch (Phase: sine only)
	Frequency float64
	Phase     float64

	// PingPong / Bounce / RandomWalk / BezierPath
	MinAngle float64
	MaxAngle float64

	// RandomWalk
	StepSize  float64
	Coherence float64
	Seed      *int64

	// BezierPath
	ControlPoints []float64

	// Step
	Sequence []float64
	HoldTime float64

	// Ripple
	WaveSpeed float64
	Decay     float64

	// Breath
	InhaleTime     float64
	ExhaleTime     float64
	HoldTimeBreath float64

	// Twitch / Glitch
	Intensity   float64
	IntervalMin float64
	IntervalMax float64
}

// DefaultParams returns the generator defaults from the original
// library, with the universal knobs set to center=90/depth=45/rate=1.
func DefaultParams() Params {
	return Params{
		Rate:           1.0,
		Depth:          45.0,
		Center:         90.0,
		Loop:           true,
		Frequency:      0.5,
		MinAngle:       45.0,
		MaxAngle:       135.0,
		StepSize:       5.0,
		Coherence:      0.8,
		ControlPoints:  []float64{0.0, 0.3, 0.7, 1.0},
		Sequence:       []float64{45.0, 90.0, 135.0, 90.0},
		HoldTime:       1.0,
		WaveSpeed:      1.0,
		Decay:          0.1,
		InhaleTime:     2.0,
		ExhaleTime:     3.0,
		HoldTimeBreath: 0.5,
		Intensity:      0.3,
		IntervalMin:    0.5,
		IntervalMax:    3.0,
	}
}

// randomWalkState is RandomWalk's per-target typed state: the running
// position/velocity and a private PRNG seeded once at instance creation.
type randomWalkState struct {
	position float64
	velocity float64
	rng      *rand.Rand
}

// stepState is Step's per-target typed state: which sequence index is
// current and when it last advanced.
type stepState struct {
	index        int
	lastStepTime int64 // UnixNano
}

// twitchState is Twitch's per-target typed state: when the next twitch
// fires.
type twitchState struct {
	nextTwitch int64 // UnixNano
}
