package registry

import "sync"

// Orientation is a mechanical-mounting correction applied at write time.
// MIRRORED is kept distinct from INVERTED even though it behaves
// identically today (spec §9, open question 2) so a future paired-servo
// semantic can be added without changing the wire format.
type Orientation int

const (
	Normal Orientation = iota
	Inverted
	Mirrored
)

func (o Orientation) String() string {
	switch o {
	case Inverted:
		return "inverted"
	case Mirrored:
		return "mirrored"
	default:
		return "normal"
	}
}

// ParseOrientation parses the JSON/API string form back into an
// Orientation, defaulting to Normal for an empty string.
func ParseOrientation(s string) (Orientation, bool) {
	switch s {
	case "", "normal":
		return Normal, true
	case "inverted":
		return Inverted, true
	case "mirrored":
		return Mirrored, true
	default:
		return Normal, false
	}
}

// Servo is a single registered servo's identity, calibration, and
// runtime state (spec §3). CurrentAngle/TargetAngle are written from
// multiple engine goroutines, so they're guarded by a servo-local mutex
// rather than the registry's own lock (spec §5): updating both fields
// together under one small lock is simpler and just as cheap as a pair
// of atomics, and avoids the two-field tearing a pair of independent
// atomics would allow.
type Servo struct {
	ID          string
	Channel     int
	Pin         *int
	Orientation Orientation
	GearRatio   float64
	Notes       string

	MinPulseUS int
	MaxPulseUS int
	CenterDeg  float64

	MinDeg float64
	MaxDeg float64

	Enabled bool
	Aliases []string

	mu           sync.Mutex
	currentAngle float64
	targetAngle  float64
}

// CurrentAngle returns the servo's last-committed angle.
func (s *Servo) CurrentAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAngle
}

// TargetAngle returns the servo's most recently requested angle.
func (s *Servo) TargetAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetAngle
}

// setAngles commits both current and target angle atomically with
// respect to CurrentAngle/TargetAngle readers.
func (s *Servo) setAngles(current, target float64) {
	s.mu.Lock()
	s.currentAngle = current
	s.targetAngle = target
	s.mu.Unlock()
}

// Midpoint is the center of the servo's soft-limit range, used by the
// built-in "retract" safe pose (spec §4.3).
func (s *Servo) Midpoint() float64 {
	return (s.MinDeg + s.MaxDeg) / 2
}
