package control

import (
	"sort"

	"stagehand.dev/stagehand/internal/events"
	"stagehand.dev/stagehand/internal/preset"
	"stagehand.dev/stagehand/internal/registry"
	"stagehand.dev/stagehand/internal/safety"
	"stagehand.dev/stagehand/internal/timeline"
)

// --- servo.* -----------------------------------------------------------

// ServoRegister adds a new servo to the registry (spec §6's
// servo.register). Every mutating verb pets the watchdog.
func (c *Controller) ServoRegister(id string, channel int, pin *int, orientation string, gearRatio float64, notes string) Result {
	ori, valid := registry.ParseOrientation(orientation)
	if !valid {
		return failf("unknown orientation %q", orientation)
	}
	if err := c.registry.Register(id, channel, registry.RegisterOptions{Pin: pin, Orientation: ori, GearRatio: gearRatio, Notes: notes}); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	c.events.Publish(events.Event{Type: events.ServoRegistered, Data: id})
	return ok()
}

// ServoRename renames a registered servo (spec §6's servo.rename).
func (c *Controller) ServoRename(oldID, newID string) Result {
	if err := c.registry.Rename(oldID, newID); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	return ok()
}

// ServoAlias adds an alternate name for a servo (spec §6's servo.alias).
func (c *Controller) ServoAlias(id, alias string) Result {
	if err := c.registry.Alias(id, alias); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	return ok()
}

// ServoCalibrate sets a servo's pulse-width-to-angle mapping (spec §6's
// servo.calibrate). A CalibrationWarning is reported as a successful
// Result carrying the warning text, matching the registry's
// warning-not-failure treatment of unusual pulse widths.
func (c *Controller) ServoCalibrate(id string, minUS, maxUS int, centerDeg float64) Result {
	warn, err := c.registry.Calibrate(id, minUS, maxUS, centerDeg)
	if err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	if warn != nil {
		return Result{Success: true, Error: warn.Error()}
	}
	return ok()
}

// ServoSetLimits sets a servo's soft-limit range (spec §6's
// servo.set_limits).
func (c *Controller) ServoSetLimits(id string, minDeg, maxDeg float64) Result {
	if err := c.registry.SetSoftLimits(id, minDeg, maxDeg); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	return ok()
}

// ServoSetAngle drives a single servo to angle (spec §6's
// servo.set_angle).
func (c *Controller) ServoSetAngle(id string, angle float64) Result {
	res := c.registry.Resolve(id)
	if !res.Found() {
		return failf("servo %q not found", id)
	}
	if !res.Servo.Enabled {
		return failf("servo %q is disabled", id)
	}
	c.WatchdogPet()
	if !c.DriveAngle(id, angle) {
		return failf("failed to drive servo %q", id)
	}
	return ok()
}

// ServoEnable re-enables a servo and re-drives it to its last target
// angle; ServoDisable detaches it (spec §6's servo.enable/disable:
// "detach or re-drive last angle").
func (c *Controller) ServoEnable(id string) Result {
	res := c.registry.Resolve(id)
	if !res.Found() {
		return failf("servo %q not found", id)
	}
	if err := c.registry.SetEnabled(id, true); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.saveRegistry()
	c.events.Publish(events.Event{Type: events.ServoEnabled, Data: id})
	c.DriveAngle(id, res.Servo.TargetAngle())
	return ok()
}

func (c *Controller) ServoDisable(id string) Result {
	if !c.Detach(id) {
		return failf("failed to disable servo %q", id)
	}
	c.WatchdogPet()
	c.saveRegistry()
	return ok()
}

// --- safety.* ------------------------------------------------------------

// SafetySafePose drives every servo in the named pose (empty name means
// the default "park" pose) (spec §6's safety.safe_pose), returning the
// number of servos successfully driven.
func (c *Controller) SafetySafePose(name string) (int, Result) {
	n, err := c.safety.GoSafePose(name)
	if err != nil {
		return 0, fail(err)
	}
	c.WatchdogPet()
	return n, ok()
}

// SafetyPreflight runs the preflight sweep (spec §6's safety.preflight).
func (c *Controller) SafetyPreflight() *safety.PreflightReport {
	report := c.safety.Preflight()
	c.WatchdogPet()
	return report
}

// SafetyEmergencyStop transitions to Emergency with the given mode
// (spec §6's safety.emergency_stop). modeName is "detach", "hold", or
// "safe_pose".
func (c *Controller) SafetyEmergencyStop(modeName string) Result {
	mode, valid := parseEmergencyMode(modeName)
	if !valid {
		return failf("unknown emergency mode %q", modeName)
	}
	success := c.safety.EmergencyStop(mode)
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.EmergencyStop, Data: c.safety.GetSafetyStatus()})
	if !success {
		return failf("emergency stop (%s) did not reach every servo", modeName)
	}
	return ok()
}

func parseEmergencyMode(s string) (safety.EmergencyMode, bool) {
	switch s {
	case "", "detach":
		return safety.Detach, true
	case "hold":
		return safety.Hold, true
	case "safe_pose":
		return safety.SafePose, true
	default:
		return safety.Detach, false
	}
}

// SafetyReset returns the safety system to Normal (spec §6's
// safety.reset).
func (c *Controller) SafetyReset() Result {
	if !c.safety.Reset() {
		return failf("reset is only valid from emergency or fault")
	}
	c.WatchdogPet()
	return ok()
}

// --- preset.* ------------------------------------------------------------

// PresetPlay starts a named preset (spec §6's preset.play).
func (c *Controller) PresetPlay(name string, targets []string, rate float64, loop bool) Result {
	if err := c.presets.Play(name, targets, rate, loop); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.PresetStatus, Data: PresetEvent{Name: name, Action: "play"}})
	return ok()
}

// PresetStop/Pause/Resume control a running preset instance (spec §6's
// preset.stop / preset.pause / preset.resume).
func (c *Controller) PresetStop(name string) Result {
	if !c.presets.Stop(name) {
		return failf("preset %q is not running", name)
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.PresetStatus, Data: PresetEvent{Name: name, Action: "stop"}})
	return ok()
}

func (c *Controller) PresetPause(name string) Result {
	if !c.presets.Pause(name) {
		return failf("preset %q is not running", name)
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.PresetStatus, Data: PresetEvent{Name: name, Action: "pause"}})
	return ok()
}

func (c *Controller) PresetResume(name string) Result {
	if !c.presets.Resume(name) {
		return failf("preset %q is not running", name)
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.PresetStatus, Data: PresetEvent{Name: name, Action: "resume"}})
	return ok()
}

// PresetCreate defines a new named preset (spec §6's preset.create).
func (c *Controller) PresetCreate(name string, targets []string, presetType string, params preset.Params) Result {
	t, valid := preset.ParseType(presetType)
	if !valid {
		return failf("unknown preset type %q", presetType)
	}
	c.presets.CreatePreset(name, targets, t, params)
	c.WatchdogPet()
	c.saveRegistry()
	return ok()
}

// PresetEvent is the payload of a PresetStatus event.
type PresetEvent struct {
	Name   string
	Action string
}

// --- timeline.* ----------------------------------------------------------

// TimelineNew defines a new timeline (spec §6's timeline.new).
func (c *Controller) TimelineNew(name string, fps, bpm *float64, durationMS float64) Result {
	if err := c.timelines.CreateTimeline(name, fps, bpm, durationMS); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineTrackAdd adds a track to a timeline (spec §6's
// timeline.track_add).
func (c *Controller) TimelineTrackAdd(timelineName, trackName, target string) Result {
	if err := c.timelines.AddTrack(timelineName, trackName, target); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineKeyframeAdd inserts a keyframe into a track (spec §6's
// timeline.keyframe_add).
func (c *Controller) TimelineKeyframeAdd(timelineName, trackName string, timeMS, value float64, easeName string, tension float64) Result {
	ease, valid := timeline.ParseEase(easeName)
	if !valid {
		return failf("unknown ease %q", easeName)
	}
	if err := c.timelines.AddKeyframe(timelineName, trackName, timeMS, value, ease, tension); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelinePlay starts or resumes timeline transport (spec §6's
// timeline.play).
func (c *Controller) TimelinePlay(name string) Result {
	if err := c.timelines.Play(name); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.TimelineStatus, Data: c.timelines.GetTimelineStatus()})
	return ok()
}

// TimelinePause/Stop control timeline transport (spec §6's
// timeline.pause / timeline.stop).
func (c *Controller) TimelinePause() Result {
	if !c.timelines.Pause() {
		return failf("timeline is not playing")
	}
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.TimelineStatus, Data: c.timelines.GetTimelineStatus()})
	return ok()
}

func (c *Controller) TimelineStop() Result {
	c.timelines.Stop()
	c.WatchdogPet()
	c.events.Publish(events.Event{Type: events.TimelineStatus, Data: c.timelines.GetTimelineStatus()})
	return ok()
}

// TimelineScrub jumps the active timeline to timeMS (spec §6's
// timeline.scrub).
func (c *Controller) TimelineScrub(timeMS float64) Result {
	if err := c.timelines.Scrub(timeMS); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineSetSpeed changes playback speed (spec §6's
// timeline.set_speed).
func (c *Controller) TimelineSetSpeed(rate float64) Result {
	if err := c.timelines.SetSpeed(rate); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineLoopSet configures a timeline's loop window (spec §6's
// timeline.loop_set).
func (c *Controller) TimelineLoopSet(name string, enabled bool, startMS, endMS float64) Result {
	if err := c.timelines.SetLoop(name, enabled, startMS, endMS); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineJump scrubs to a named marker (spec §6's timeline.jump).
func (c *Controller) TimelineJump(name, label string) Result {
	if err := c.timelines.Jump(name, label); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineQuantizeSet toggles keyframe quantization (spec §6's
// timeline.quantize_set).
func (c *Controller) TimelineQuantizeSet(enabled bool, gridMS float64) Result {
	c.timelines.SetQuantize(enabled, gridMS)
	c.WatchdogPet()
	return ok()
}

// TimelineSimplifyTrack removes redundant keyframes from a track (spec
// §6's timeline.simplify_track), returning the number removed.
func (c *Controller) TimelineSimplifyTrack(timelineName, trackName string, toleranceDeg float64) int {
	removed := c.timelines.SimplifyTrack(timelineName, trackName, toleranceDeg)
	c.WatchdogPet()
	return removed
}

// TimelineMarkersSet replaces a timeline's markers (spec §6's
// timeline.markers_set).
func (c *Controller) TimelineMarkersSet(name string, markers []timeline.Marker) Result {
	if err := c.timelines.SetMarkers(name, markers); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineRecordStart begins live recording onto the active timeline
// (spec §6's timeline.record_start).
func (c *Controller) TimelineRecordStart(targets []string) Result {
	if err := c.timelines.RecordLiveStart(targets); err != nil {
		return fail(err)
	}
	c.WatchdogPet()
	return ok()
}

// TimelineRecordStop ends live recording (spec §6's
// timeline.record_stop), returning the total number of keyframes on the
// recorded tracks.
func (c *Controller) TimelineRecordStop() (int, Result) {
	n, wasRecording := c.timelines.RecordLiveStop()
	if !wasRecording {
		return 0, failf("not currently recording")
	}
	c.WatchdogPet()
	return n, ok()
}

// --- read-only status -----------------------------------------------------

// ServoStatus is one servo's status within Status's Servos slice.
type ServoStatus struct {
	ID           string
	Channel      int
	Enabled      bool
	CurrentAngle float64
	TargetAngle  float64
	MinDeg       float64
	MaxDeg       float64
	Orientation  string
}

// Status is the aggregate system snapshot (spec §6's status verb):
// every servo plus the safety and timeline subsystem summaries.
type Status struct {
	Servos   []ServoStatus
	Safety   safety.Status
	Timeline timeline.Status
	Presets  []string
}

// GetStatus aggregates every subsystem's state into one snapshot.
func (c *Controller) GetStatus() Status {
	snap := c.registry.Snapshot()
	servos := make([]ServoStatus, 0, len(snap))
	for id, s := range snap {
		servos = append(servos, ServoStatus{
			ID: id, Channel: s.Channel, Enabled: s.Enabled,
			CurrentAngle: s.CurrentAngle(), TargetAngle: s.TargetAngle(),
			MinDeg: s.MinDeg, MaxDeg: s.MaxDeg, Orientation: s.Orientation.String(),
		})
	}
	sort.Slice(servos, func(i, j int) bool { return servos[i].ID < servos[j].ID })

	return Status{
		Servos:   servos,
		Safety:   c.safety.GetSafetyStatus(),
		Timeline: c.timelines.GetTimelineStatus(),
		Presets:  c.presets.Running(),
	}
}

