package safety

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stagehand.dev/stagehand/internal/registry"
)

// Callback is invoked whenever the system's state changes.
type Callback func(from, to State)

// System is the Safety System (spec §4.3): it owns the severity state
// machine, the watchdog, the named safe poses, and the preflight sweep.
// It never talks to hardware directly — every write goes through Writer,
// the same clamp->orient->driver path every other engine uses.
type System struct {
	mu     sync.Mutex
	state  State
	mode   EmergencyMode
	poses  map[string]*Pose

	registry *registry.Registry
	writer   Writer
	log      *slog.Logger

	watchdog *watchdog

	callbacks []Callback

	faultLog     []string
	emergencyLog []string
}

const defaultSafePose = "park"

// NewSystem builds a Safety System over reg/writer and seeds the
// built-in "park" and "retract" safe poses from the servos registered
// at construction time, mirroring _create_default_safe_poses in the
// original backend: poses are a snapshot, not a live view, so servos
// registered afterward are absent until AddSafePose or a rebuild adds
// them explicitly.
func NewSystem(reg *registry.Registry, writer Writer, log *slog.Logger) *System {
	if log == nil {
		log = slog.Default()
	}
	s := &System{
		state:    Normal,
		mode:     SafePose,
		poses:    make(map[string]*Pose),
		registry: reg,
		writer:   writer,
		log:      log,
		watchdog: newWatchdog(),
	}
	s.buildDefaultPoses()
	return s
}

func (s *System) buildDefaultPoses() {
	snap := s.registry.Snapshot()

	park := &Pose{Name: "park", Description: "all servos to midline (90deg)", Angles: map[string]float64{}, Priority: 100}
	retract := &Pose{Name: "retract", Description: "all servos to a conservative retracted angle", Angles: map[string]float64{}, Priority: 90}

	for id, svo := range snap {
		park.Angles[id] = clampFloat(90.0, svo.MinDeg, svo.MaxDeg)
		retreatAngle := svo.Midpoint()
		if retreatAngle > 45.0 {
			retreatAngle = 45.0
		}
		retract.Angles[id] = clampFloat(retreatAngle, svo.MinDeg, svo.MaxDeg)
	}

	s.poses["park"] = park
	s.poses["retract"] = retract
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// AddSafePose registers (or replaces) a named safe pose. Angles are
// clamped to each target servo's current soft limits at registration
// time (spec §4.3).
func (s *System) AddSafePose(name, description string, angles map[string]float64, priority int) {
	clamped := make(map[string]float64, len(angles))
	for id, angle := range angles {
		clamped[id] = s.registry.ClampAngle(id, angle)
	}
	s.mu.Lock()
	s.poses[name] = &Pose{Name: name, Description: description, Angles: clamped, Priority: priority}
	s.mu.Unlock()
}

// GoSafePose drives every servo named in the pose to its configured
// angle. name == "" uses the default pose ("park"). It returns the
// number of servos successfully driven and an error if the pose is
// unknown.
func (s *System) GoSafePose(name string) (int, error) {
	if name == "" {
		name = defaultSafePose
	}
	s.mu.Lock()
	pose, ok := s.poses[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: pose %q", ErrNotFound, name)
	}

	ok2 := 0
	// Deterministic order keeps logs and tests reproducible.
	ids := make([]string, 0, len(pose.Angles))
	for id := range pose.Angles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.writer.DriveAngle(id, pose.Angles[id]) {
			ok2++
		} else {
			s.log.Warn("safe pose write failed", "pose", name, "servo", id)
		}
	}
	return ok2, nil
}

// EmergencyStop transitions to Emergency and applies mode: Detach
// detaches every servo, Hold leaves servos exactly where they are,
// SafePose drives the default safe pose (spec §4.3).
func (s *System) EmergencyStop(mode EmergencyMode) bool {
	s.transition(Emergency)
	s.mu.Lock()
	s.mode = mode
	s.emergencyLog = append(s.emergencyLog, mode.String())
	s.mu.Unlock()

	switch mode {
	case Detach:
		ok := true
		for id := range s.registry.Snapshot() {
			if !s.writer.Detach(id) {
				ok = false
			}
		}
		return ok
	case Hold:
		return true
	default: // SafePose
		_, err := s.GoSafePose(defaultSafePose)
		return err == nil
	}
}

// Reset returns the system to Normal. Only valid from Emergency or
// Fault (spec §4.3); returns false and leaves state untouched
// otherwise.
func (s *System) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Emergency && s.state != Fault {
		return false
	}
	from := s.state
	s.state = Normal
	s.notifyLocked(from, Normal)
	return true
}

// State returns the current severity level.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddCallback registers a function invoked on every state transition.
func (s *System) AddCallback(cb Callback) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

func (s *System) transition(to State) {
	s.mu.Lock()
	from := s.state
	if to > s.state || to == Normal {
		s.state = to
	}
	changed := from != s.state
	cur := s.state
	s.mu.Unlock()
	if changed {
		s.notify(from, cur)
	}
}

func (s *System) notify(from, to State) {
	s.mu.Lock()
	cbs := append([]Callback(nil), s.callbacks...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(from, to)
	}
}

func (s *System) notifyLocked(from, to State) {
	cbs := append([]Callback(nil), s.callbacks...)
	for _, cb := range cbs {
		cb(from, to)
	}
}

// WatchdogStart (re)arms the watchdog with the given timeout. If the
// watchdog isn't pet within timeout, onTimeout runs (wrapped in a
// recover() so a panicking caller-supplied callback can't kill the
// watchdog goroutine), the system transitions to Fault, and a fault
// entry is logged (spec §4.3).
func (s *System) WatchdogStart(timeout time.Duration, onTimeout func() bool) {
	s.watchdog.start(timeout, func(gap time.Duration) {
		s.handleWatchdogTimeout(gap, onTimeout)
	})
}

func (s *System) handleWatchdogTimeout(gap time.Duration, onTimeout func() bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("watchdog timeout handler panicked", "recover", r)
		}
	}()

	s.mu.Lock()
	s.faultLog = append(s.faultLog, fmt.Sprintf("watchdog timeout after %s", gap))
	s.mu.Unlock()
	s.log.Warn("watchdog timeout", "gap", gap)

	s.transition(Fault)

	if onTimeout != nil {
		onTimeout()
	} else {
		s.GoSafePose(defaultSafePose)
	}
}

// WatchdogStop disarms the watchdog.
func (s *System) WatchdogStop() {
	s.watchdog.stop()
}

// WatchdogPet resets the watchdog's timer. Callers on the hot path
// (every successful control operation) should call this.
func (s *System) WatchdogPet() {
	s.watchdog.pet()
}

// WatchdogActive reports whether the watchdog is currently armed.
func (s *System) WatchdogActive() bool {
	return s.watchdog.isEnabled()
}

// Cleanup disarms the watchdog and detaches every servo. Intended for
// process shutdown.
func (s *System) Cleanup() {
	s.WatchdogStop()
	for id := range s.registry.Snapshot() {
		s.writer.Detach(id)
	}
}

// Status is a snapshot of the safety system for reporting (spec §6's
// get_safety_status).
type Status struct {
	State        string
	Mode         string
	WatchdogOn   bool
	Poses        []string
	FaultLog     []string
	EmergencyLog []string
}

// GetSafetyStatus returns a snapshot of the system's current state.
func (s *System) GetSafetyStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	poses := make([]string, 0, len(s.poses))
	for name := range s.poses {
		poses = append(poses, name)
	}
	sort.Strings(poses)
	return Status{
		State:        s.state.String(),
		Mode:         s.mode.String(),
		WatchdogOn:   s.watchdog.isEnabled(),
		Poses:        poses,
		FaultLog:     append([]string(nil), s.faultLog...),
		EmergencyLog: append([]string(nil), s.emergencyLog...),
	}
}
