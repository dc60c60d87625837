package preset

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stagehand.dev/stagehand/internal/registry"
)

// Writer is the engine's only path to hardware: DriveAngle clamps and
// orients angle for id and writes it through the driver, committing the
// result to the registry. control.Controller implements this.
type Writer interface {
	DriveAngle(id string, angle float64) bool
}

// Definition is a named, reusable preset configuration (spec §4.4):
// a generator type, its parameters, and the targets it applies to by
// default when none are given to Play.
type Definition struct {
	Type           Type
	Params         Params
	DefaultTargets []string
	Description    string
}

const updateRate = 30 // Hz, per spec §4.4 / §5

// Engine runs zero or more named preset instances, advancing every
// running instance at 30Hz on a single background goroutine (spec
// §4.4, §5).
type Engine struct {
	registry *registry.Registry
	writer   Writer
	log      *slog.Logger

	mu          sync.Mutex
	definitions map[string]*Definition
	instances   map[string]*Instance

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds an Engine with the built-in named presets loaded (spec
// §4.4): breathe, twitch, quiver, nod, ripple, swarm.
func New(reg *registry.Registry, writer Writer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		registry:    reg,
		writer:      writer,
		log:         log,
		definitions: make(map[string]*Definition),
		instances:   make(map[string]*Instance),
	}
	e.loadBuiltinDefinitions()
	return e
}

func (e *Engine) loadBuiltinDefinitions() {
	breathe := DefaultParams()
	breathe.Rate, breathe.Depth = 0.3, 15
	breathe.InhaleTime, breathe.ExhaleTime, breathe.HoldTimeBreath = 3.0, 4.0, 0.8

	twitchP := DefaultParams()
	twitchP.Intensity, twitchP.IntervalMin, twitchP.IntervalMax, twitchP.Depth = 0.4, 1.0, 5.0, 10

	quiver := DefaultParams()
	quiver.Frequency, quiver.Depth, quiver.Rate = 8.0, 2, 1.0

	nod := DefaultParams()
	nod.Rate, nod.MinAngle, nod.MaxAngle = 0.5, 75, 105

	rippleP := DefaultParams()
	rippleP.WaveSpeed, rippleP.Depth, rippleP.Decay = 1.5, 20, 0.1

	swarmP := DefaultParams()
	swarmP.Frequency, swarmP.Depth, swarmP.Rate = 0.7, 25, 0.8

	e.definitions["breathe"] = &Definition{Type: Breath, Params: breathe, Description: "Gentle breathing motion"}
	e.definitions["twitch"] = &Definition{Type: Twitch, Params: twitchP, Description: "Occasional nervous twitches"}
	e.definitions["quiver"] = &Definition{Type: Sine, Params: quiver, Description: "High-frequency micro-movements"}
	e.definitions["nod"] = &Definition{Type: PingPong, Params: nod, Description: "Gentle nodding motion"}
	e.definitions["ripple"] = &Definition{Type: Ripple, Params: rippleP, Description: "Wave propagating across servos"}
	e.definitions["swarm"] = &Definition{Type: Swarm, Params: swarmP, Description: "Coordinated group movement"}
}

// CreatePreset defines a custom, reusable preset (spec §4.4). Unknown
// targets are logged as warnings but don't prevent creation, matching
// the original's best-effort behavior.
func (e *Engine) CreatePreset(name string, targets []string, t Type, params Params) {
	for _, target := range targets {
		if !e.registry.Resolve(target).Found() {
			e.log.Warn("preset target not found in registry", "preset", name, "target", target)
		}
	}
	e.mu.Lock()
	e.definitions[name] = &Definition{Type: t, Params: params, DefaultTargets: append([]string(nil), targets...), Description: fmt.Sprintf("Custom preset: %s", t)}
	e.mu.Unlock()
}

// Play starts (or restarts) a preset definition on targets, or its
// default targets if targets is empty (spec §4.4). rate<=0 keeps the
// definition's own rate.
func (e *Engine) Play(name string, targets []string, rate float64, loop bool) error {
	e.mu.Lock()
	def, ok := e.definitions[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if len(targets) == 0 {
		targets = def.DefaultTargets
	}
	if len(targets) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: preset %q", ErrNoTargets, name)
	}

	params := def.Params
	if rate > 0 {
		params.Rate = rate
	}
	params.Loop = loop

	instance := NewInstance(name, targets, def.Type, params)
	instance.Start()
	e.instances[name] = instance
	needStart := !e.started
	e.mu.Unlock()

	if needStart {
		e.startLoop()
	}
	e.log.Info("preset started", "preset", name, "targets", len(targets), "rate", rate)
	return nil
}

// Stop halts and removes a running instance. Reports whether one was
// running.
func (e *Engine) Stop(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.instances[name]; !ok {
		return false
	}
	delete(e.instances, name)
	return true
}

// Pause/Resume toggle a running instance without removing it.
func (e *Engine) Pause(name string) bool  { return e.withInstance(name, (*Instance).Pause) }
func (e *Engine) Resume(name string) bool { return e.withInstance(name, (*Instance).Resume) }

func (e *Engine) withInstance(name string, fn func(*Instance)) bool {
	e.mu.Lock()
	inst, ok := e.instances[name]
	e.mu.Unlock()
	if !ok {
		return false
	}
	fn(inst)
	return true
}

// StopAll halts every running instance.
func (e *Engine) StopAll() {
	e.mu.Lock()
	e.instances = make(map[string]*Instance)
	e.mu.Unlock()
}

// Running returns the names of every currently running (not merely
// paused-but-present) instance.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.instances))
	for name, inst := range e.instances {
		if inst.IsRunning() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Definitions returns every known preset definition, keyed by name.
func (e *Engine) Definitions() map[string]*Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*Definition, len(e.definitions))
	for name, def := range e.definitions {
		out[name] = def
	}
	return out
}

func (e *Engine) startLoop() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.updateWorker()
}

func (e *Engine) updateWorker() {
	defer close(e.doneCh)
	ticker := time.NewTicker(time.Second / updateRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			e.tick(dt)
		}
	}
}

func (e *Engine) tick(dt float64) {
	e.mu.Lock()
	instances := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		instances = append(instances, inst)
	}
	e.mu.Unlock()

	for _, inst := range instances {
		if !inst.IsRunning() {
			continue
		}
		positions := inst.Update(dt)
		for target, angle := range positions {
			res := e.registry.Resolve(target)
			if !res.Found() || !res.Servo.Enabled {
				continue
			}
			e.writer.DriveAngle(target, angle)
		}
	}
}

// Cleanup stops the update goroutine and every running instance.
func (e *Engine) Cleanup() {
	e.StopAll()
	e.mu.Lock()
	started := e.started
	e.started = false
	e.mu.Unlock()
	if !started {
		return
	}
	close(e.stopCh)
	<-e.doneCh
}
