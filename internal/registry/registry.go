// Package registry implements the Servo Registry (spec §3, §4.2):
// identifier resolution, calibration, soft limits, and orientation.
package registry

import (
	"fmt"
	"strconv"
	"sync"
)

// Registry is the read-mostly store of registered servos. Mutating
// operations (Register/Rename/Alias/Calibrate/SetSoftLimits) take the
// writer lock; reads (Resolve, ClampAngle, ApplyOrientation) take the
// reader lock (spec §5).
type Registry struct {
	mu      sync.RWMutex
	servos  map[string]*Servo
	byChan  [16]string // channel -> id, "" if unused
	aliases map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		servos:  make(map[string]*Servo),
		aliases: make(map[string]string),
	}
}

// RegisterOptions carries the optional fields of servo.register
// (spec §6).
type RegisterOptions struct {
	Pin         *int
	Orientation Orientation
	GearRatio   float64
	Notes       string
}

// Register adds a new servo at channel with sane calibration/limit
// defaults, matching original_source/backend/servo_registry.py's
// ServoMetadata defaults. It fails with ErrDuplicateID,
// ErrDuplicateChannel, or ErrChannelOutOfRange (spec §4.2).
func (r *Registry) Register(id string, channel int, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if channel < 0 || channel > 15 {
		return fmt.Errorf("%w: channel %d", ErrChannelOutOfRange, channel)
	}
	if _, exists := r.servos[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if r.byChan[channel] != "" {
		return fmt.Errorf("%w: channel %d already assigned to %q", ErrDuplicateChannel, channel, r.byChan[channel])
	}

	gearRatio := opts.GearRatio
	if gearRatio == 0 {
		gearRatio = 1.0
	}

	s := &Servo{
		ID:          id,
		Channel:     channel,
		Pin:         opts.Pin,
		Orientation: opts.Orientation,
		GearRatio:   gearRatio,
		Notes:       opts.Notes,
		MinPulseUS:  750,
		MaxPulseUS:  2250,
		CenterDeg:   90.0,
		MinDeg:      0.0,
		MaxDeg:      180.0,
		Enabled:     false,
	}
	s.setAngles(90.0, 90.0)

	r.servos[id] = s
	r.byChan[channel] = id
	return nil
}

// Rename changes a servo's canonical id, updating the channel index and
// every alias that pointed at the old id, atomically (spec §4.2).
func (r *Registry) Rename(oldID, newID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servos[oldID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, oldID)
	}
	if _, exists := r.servos[newID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, newID)
	}

	delete(r.servos, oldID)
	s.ID = newID
	r.servos[newID] = s
	r.byChan[s.Channel] = newID
	for alias, id := range r.aliases {
		if id == oldID {
			r.aliases[alias] = newID
		}
	}
	return nil
}

// Alias adds a human-friendly alternate name for an existing servo
// (spec §4.2).
func (r *Registry) Alias(id, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servos[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if _, exists := r.aliases[alias]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAlias, alias)
	}

	r.aliases[alias] = id
	s.Aliases = append(s.Aliases, alias)
	return nil
}

// SetSoftLimits sets a servo's safety bounds (spec §4.2). Rejects
// min>=max or either bound outside [0,180].
func (r *Registry) SetSoftLimits(id string, minDeg, maxDeg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servos[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if minDeg >= maxDeg {
		return fmt.Errorf("%w: min_deg %v >= max_deg %v", ErrOutOfRange, minDeg, maxDeg)
	}
	if minDeg < 0 || minDeg > 180 || maxDeg < 0 || maxDeg > 180 {
		return fmt.Errorf("%w: limits must be within [0,180]", ErrOutOfRange)
	}

	s.MinDeg = minDeg
	s.MaxDeg = maxDeg
	return nil
}

// CalibrationWarning is returned (alongside a nil error) by Calibrate
// when pulse widths fall outside the typical 500-2500us band — spec
// §4.2 treats this as a warning, not a failure.
type CalibrationWarning struct {
	MinPulseUS, MaxPulseUS int
}

func (w *CalibrationWarning) Error() string {
	return fmt.Sprintf("registry: pulse widths %d-%dus outside typical 500-2500us range", w.MinPulseUS, w.MaxPulseUS)
}

// Calibrate sets a servo's pulse-width-to-angle mapping (spec §4.2).
// Rejects minUS >= maxUS; returns a non-nil *CalibrationWarning (still
// applying the calibration) if either bound is outside [500,2500].
func (r *Registry) Calibrate(id string, minUS, maxUS int, centerDeg float64) (*CalibrationWarning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if minUS >= maxUS {
		return nil, fmt.Errorf("%w: min_us %d >= max_us %d", ErrOutOfRange, minUS, maxUS)
	}

	s.MinPulseUS = minUS
	s.MaxPulseUS = maxUS
	s.CenterDeg = centerDeg

	if minUS < 500 || minUS > 2500 || maxUS < 500 || maxUS > 2500 {
		return &CalibrationWarning{MinPulseUS: minUS, MaxPulseUS: maxUS}, nil
	}
	return nil, nil
}

// Resolve looks up identifier as, in precedence order, a canonical ID,
// then an alias, then the decimal form of a channel number (spec §4.2,
// §9). The ID table always wins over the alias table, which always wins
// over channel-decimal, even when a numeric string collides with an
// alias.
func (r *Registry) Resolve(identifier string) ResolveResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(identifier)
}

func (r *Registry) resolveLocked(identifier string) ResolveResult {
	if s, ok := r.servos[identifier]; ok {
		return ResolveResult{Kind: ResolveByID, Servo: s}
	}
	if id, ok := r.aliases[identifier]; ok {
		return ResolveResult{Kind: ResolveByAlias, Servo: r.servos[id]}
	}
	if channel, err := strconv.Atoi(identifier); err == nil {
		if channel >= 0 && channel <= 15 && r.byChan[channel] != "" {
			return ResolveResult{Kind: ResolveByChannel, Servo: r.servos[r.byChan[channel]]}
		}
	}
	return ResolveResult{}
}

// ClampAngle clamps angle to id's soft-limit range. Idempotent (spec
// §8 invariant 4). An unresolved identifier returns angle unchanged.
func (r *Registry) ClampAngle(id string, angle float64) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := r.resolveLocked(id)
	if !res.Found() {
		return angle
	}
	return clamp(angle, res.Servo.MinDeg, res.Servo.MaxDeg)
}

func clamp(angle, min, max float64) float64 {
	if angle < min {
		return min
	}
	if angle > max {
		return max
	}
	return angle
}

// ApplyOrientation remaps angle per id's mounting orientation: identity
// for Normal, 180-angle for Inverted and Mirrored (spec §4.2). This is
// applied only to the value handed to the driver — the registry never
// applies orientation to the stored CurrentAngle. An involution for
// Inverted/Mirrored (spec §8 invariant 5).
func (r *Registry) ApplyOrientation(id string, angle float64) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := r.resolveLocked(id)
	if !res.Found() {
		return angle
	}
	switch res.Servo.Orientation {
	case Inverted, Mirrored:
		return 180.0 - angle
	default:
		return angle
	}
}

// IsAngleSafe reports whether angle is within id's soft limits.
func (r *Registry) IsAngleSafe(id string, angle float64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := r.resolveLocked(id)
	if !res.Found() {
		return false
	}
	return angle >= res.Servo.MinDeg && angle <= res.Servo.MaxDeg
}

// Commit records the result of a successful driver write: both
// CurrentAngle and TargetAngle are set to safeAngle, matching every
// engine's post-write bookkeeping in the original (servo_meta.current_angle
// = servo_meta.target_angle = safe_angle).
func (r *Registry) Commit(id string, safeAngle float64) {
	r.mu.RLock()
	res := r.resolveLocked(id)
	r.mu.RUnlock()
	if res.Found() {
		res.Servo.setAngles(safeAngle, safeAngle)
	}
}

// SetEnabled flips a servo's enabled flag (servo.enable/disable, spec §6).
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.resolveLocked(id)
	if !res.Found() {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	res.Servo.Enabled = enabled
	return nil
}

// ListIDs returns every registered servo's canonical id.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.servos))
	for id := range r.servos {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a shallow copy of every servo pointer, for status
// reporting. Mutating the returned map does not affect the registry.
func (r *Registry) Snapshot() map[string]*Servo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Servo, len(r.servos))
	for id, s := range r.servos {
		out[id] = s
	}
	return out
}
