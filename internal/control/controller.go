// Package control wires the Servo Registry, Hardware Driver, Safety
// System, Preset Engine, and Timeline Engine behind the protocol-
// agnostic verb table (spec §6). It is the one place all five
// subsystems meet: every other package only knows the narrow writer
// interface it needs.
package control

import (
	"fmt"
	"log/slog"
	"time"

	"stagehand.dev/stagehand/internal/events"
	"stagehand.dev/stagehand/internal/hardware"
	"stagehand.dev/stagehand/internal/preset"
	"stagehand.dev/stagehand/internal/registry"
	"stagehand.dev/stagehand/internal/safety"
	"stagehand.dev/stagehand/internal/timeline"
)

// Result is every mutating verb's return shape (spec §6): a mutating
// verb either succeeds or reports a human-readable error string.
type Result struct {
	Success bool
	Error   string
}

func ok() Result { return Result{Success: true} }

func fail(err error) Result { return Result{Success: false, Error: err.Error()} }

func failf(format string, args ...any) Result { return Result{Success: false, Error: fmt.Sprintf(format, args...)} }

// Controller implements every verb in the operator API (spec §6) and
// the Writer interface each engine uses to reach hardware.
type Controller struct {
	registry  *registry.Registry
	driver    *hardware.Driver
	safety    *safety.System
	presets   *preset.Engine
	timelines *timeline.Engine
	events    *events.Bus
	log       *slog.Logger

	configPath string
}

// New wires a Controller over an already-populated registry and an
// initialized hardware driver. configPath, if non-empty, is where the
// registry is saved after each successful servo verb that changes a
// servo's configuration or enabled flag, and again at Cleanup (spec §6).
func New(reg *registry.Registry, driver *hardware.Driver, configPath string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		registry:   reg,
		driver:     driver,
		events:     events.New(log),
		log:        log,
		configPath: configPath,
	}
	c.safety = safety.NewSystem(reg, c, log)
	c.presets = preset.New(reg, c, log)
	c.timelines = timeline.New(reg, c, log)
	return c
}

// DriveAngle implements safety.Writer, preset.Writer, and
// timeline.Writer: it is the single clamp->orient->driver->commit path
// every engine in the system writes through (spec §4.1-§4.5).
func (c *Controller) DriveAngle(id string, angle float64) bool {
	res := c.registry.Resolve(id)
	if !res.Found() {
		return false
	}
	safeAngle := c.registry.ClampAngle(id, angle)
	oriented := c.registry.ApplyOrientation(id, safeAngle)

	cal := hardware.Calibration{MinPulseUS: res.Servo.MinPulseUS, MaxPulseUS: res.Servo.MaxPulseUS}
	if err := c.driver.SetAngle(res.Servo.Channel, oriented, cal); err != nil {
		c.log.Warn("drive angle failed", "servo", id, "error", err)
		return false
	}
	c.registry.Commit(id, safeAngle)
	c.events.Publish(events.Event{Type: events.ServoUpdate, Data: ServoUpdate{ID: res.Servo.ID, Angle: safeAngle}})
	return true
}

// Detach implements safety.Writer: it powers down id's channel and
// marks it disabled in the registry.
func (c *Controller) Detach(id string) bool {
	res := c.registry.Resolve(id)
	if !res.Found() {
		return false
	}
	if err := c.driver.Detach(res.Servo.Channel); err != nil {
		c.log.Warn("detach failed", "servo", id, "error", err)
		return false
	}
	c.registry.SetEnabled(id, false)
	c.events.Publish(events.Event{Type: events.ServoDisabled, Data: res.Servo.ID})
	return true
}

// ServoUpdate is the payload of a ServoUpdate event.
type ServoUpdate struct {
	ID    string
	Angle float64
}

// Events returns the controller's event bus, for subscribing.
func (c *Controller) Events() *events.Bus { return c.events }

// WatchdogPet pets the safety watchdog. Every mutating verb calls this
// (spec §6: "every mutating verb pets the watchdog").
func (c *Controller) WatchdogPet() { c.safety.WatchdogPet() }

func (c *Controller) saveRegistry() {
	if c.configPath == "" {
		return
	}
	if err := c.registry.Save(c.configPath); err != nil {
		c.log.Warn("failed to persist registry", "error", err)
	}
}

// WatchdogArm starts the safety watchdog; a missed pet within timeout
// drives every servo in the "park" pose (the servos registered when the
// Controller was built) and moves the safety system to Fault (spec §4.3).
func (c *Controller) WatchdogArm(timeout time.Duration) {
	c.safety.WatchdogStart(timeout, nil)
}

// Cleanup shuts every subsystem down in dependency order: stop the
// preset and timeline background workers first (they still write
// through DriveAngle), then the safety watchdog and a final detach of
// every servo, then persist the registry.
func (c *Controller) Cleanup() {
	c.presets.Cleanup()
	c.timelines.Cleanup()
	c.safety.Cleanup()
	c.saveRegistry()
}
