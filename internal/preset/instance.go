package preset

import (
	"math/rand"
	"sync"
	"time"
)

// Instance is one running (or paused) preset, driving Targets via its
// Type's generator. All per-target runtime state lives here, typed per
// generator rather than in a dynamic attribute bag, so each generator's
// state is checked by the compiler instead of by key lookups.
type Instance struct {
	Name    string
	Targets []string
	Type    Type
	Params  Params

	startTime time.Time

	mu      sync.Mutex
	running bool
	paused  bool

	positions    map[string]float64
	phaseOffsets map[string]float64
	randomWalk   map[string]*randomWalkState
	step         map[string]*stepState
	twitch       map[string]*twitchState
}

// NewInstance builds an instance and seeds every target's per-generator
// state, mirroring PresetInstance.__init__/_initialize_target_states.
func NewInstance(name string, targets []string, t Type, params Params) *Instance {
	inst := &Instance{
		Name:         name,
		Targets:      append([]string(nil), targets...),
		Type:         t,
		Params:       params,
		startTime:    time.Now(),
		positions:    make(map[string]float64, len(targets)),
		phaseOffsets: make(map[string]float64, len(targets)),
		randomWalk:   make(map[string]*randomWalkState),
		step:         make(map[string]*stepState),
		twitch:       make(map[string]*twitchState),
	}

	now := time.Now()
	for i, target := range targets {
		switch t {
		case Ripple:
			inst.phaseOffsets[target] = float64(i) * 0.5
		case Swarm:
			inst.phaseOffsets[target] = rand.Float64() * 2 * mathPi
		default:
			inst.phaseOffsets[target] = 0.0
		}

		if t == RandomWalk {
			var src rand.Source
			if params.Seed != nil {
				src = rand.NewSource(*params.Seed)
			} else {
				src = rand.NewSource(now.UnixNano() + int64(i))
			}
			inst.randomWalk[target] = &randomWalkState{
				position: params.Center,
				rng:      rand.New(src),
			}
		}

		if t == Step {
			inst.step[target] = &stepState{lastStepTime: now.UnixNano()}
		}

		if t == Twitch {
			wait := randRange(params.IntervalMin, params.IntervalMax)
			inst.twitch[target] = &twitchState{nextTwitch: now.Add(time.Duration(wait * float64(time.Second))).UnixNano()}
		}

		inst.positions[target] = params.Center
	}

	return inst
}

const mathPi = 3.14159265358979323846

func randRange(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}

// Start marks the instance as running.
func (inst *Instance) Start() {
	inst.mu.Lock()
	inst.running = true
	inst.paused = false
	inst.mu.Unlock()
}

// Pause/Resume toggle whether Update advances the instance.
func (inst *Instance) Pause()  { inst.setPaused(true) }
func (inst *Instance) Resume() { inst.setPaused(false) }

func (inst *Instance) setPaused(p bool) {
	inst.mu.Lock()
	inst.paused = p
	inst.mu.Unlock()
}

// IsRunning reports whether the instance is active and not paused.
func (inst *Instance) IsRunning() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.running && !inst.paused
}

// Update advances the instance by dt and returns the new target
// positions. Returns the unchanged positions if stopped or paused.
func (inst *Instance) Update(dt float64) map[string]float64 {
	inst.mu.Lock()
	running, paused := inst.running, inst.paused
	inst.mu.Unlock()
	if !running || paused {
		return inst.snapshotPositions()
	}

	elapsed := time.Since(inst.startTime).Seconds()
	for _, target := range inst.Targets {
		angle := inst.calculate(target, elapsed, dt)
		inst.mu.Lock()
		inst.positions[target] = angle
		inst.mu.Unlock()
	}
	return inst.snapshotPositions()
}

func (inst *Instance) snapshotPositions() map[string]float64 {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make(map[string]float64, len(inst.positions))
	for k, v := range inst.positions {
		out[k] = v
	}
	return out
}

func (inst *Instance) calculate(target string, elapsed, dt float64) float64 {
	switch inst.Type {
	case Sine:
		return sineWave(inst.Params, inst.phaseOffsets[target], elapsed)
	case PingPong:
		return pingPong(inst.Params, elapsed)
	case Bounce:
		return bounce(inst.Params, elapsed)
	case RandomWalk:
		return randomWalk(inst.Params, inst.randomWalk[target], dt)
	case BezierPath:
		return bezierPath(inst.Params, elapsed)
	case Step:
		return stepSequence(inst.Params, inst.step[target])
	case Ripple:
		return ripple(inst.Params, inst.phaseOffsets[target], elapsed)
	case Swarm:
		return swarm(inst.Params, inst.phaseOffsets[target], elapsed)
	case Breath:
		return breath(inst.Params, elapsed)
	case Twitch:
		current := inst.positions[target]
		return twitch(inst.Params, inst.twitch[target], current)
	case Glitch:
		return glitch(inst.Params, elapsed)
	default:
		return inst.Params.Center
	}
}
