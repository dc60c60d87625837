package timeline

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

// PositionCallback is invoked on every transport tick and scrub with
// the current playback position.
type PositionCallback func(timeMS float64)

// StateCallback is invoked whenever the transport's State changes.
type StateCallback func(State)

const transportRate = 60 // Hz, per spec §4.5 / §5

// Engine owns every Timeline, the single active transport, and live
// recording. Only one timeline plays at a time (spec §4.5).
type Engine struct {
	registry *registry.Registry
	writer   Writer
	log      *slog.Logger

	mu             sync.Mutex
	timelines      map[string]*Timeline
	activeTimeline string

	state         State
	currentTimeMS float64
	playbackSpeed float64
	startTime     float64 // unix seconds
	pauseTime     float64 // unix seconds

	quantizeEnabled bool
	quantizeGridMS  float64

	recordingTracks    map[string]*Track
	recordingStartTime float64

	positionCallbacks []PositionCallback
	stateCallbacks    []StateCallback

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds an Engine with no timelines defined.
func New(reg *registry.Registry, writer Writer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		registry:        reg,
		writer:          writer,
		log:             log,
		timelines:       make(map[string]*Timeline),
		playbackSpeed:   1.0,
		quantizeGridMS:  100.0,
		recordingTracks: make(map[string]*Track),
	}
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// CreateTimeline defines a new, empty timeline. The first timeline
// created becomes the active one.
func (e *Engine) CreateTimeline(name string, fps, bpm *float64, durationMS float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.timelines[name]; exists {
		return fmt.Errorf("%w: timeline %q", ErrDuplicateTimeline, name)
	}
	e.timelines[name] = NewTimeline(name, fps, bpm, durationMS)
	if e.activeTimeline == "" {
		e.activeTimeline = name
	}
	return nil
}

// AddTrack adds an empty track for target to timelineName.
func (e *Engine) AddTrack(timelineName, trackName, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
	}
	if tl.findTrack(trackName) != nil {
		return fmt.Errorf("%w: track %q", ErrDuplicateTrack, trackName)
	}
	if !e.registry.Resolve(target).Found() {
		e.log.Warn("track target not found in registry", "timeline", timelineName, "track", trackName, "target", target)
	}
	tl.Tracks = append(tl.Tracks, NewTrack(trackName, target))
	return nil
}

// AddKeyframe inserts a keyframe into a track, quantizing its time if
// quantization is enabled and clamping its value to the target's safe
// range if the target resolves to a registered servo (spec §4.5).
func (e *Engine) AddKeyframe(timelineName, trackName string, timeMS, value float64, ease Ease, tension float64) error {
	e.mu.Lock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
	}
	track := tl.findTrack(trackName)
	if track == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: track %q", ErrNotFound, trackName)
	}
	if e.quantizeEnabled {
		timeMS = quantize(timeMS, e.quantizeGridMS)
	}
	e.mu.Unlock()

	if e.registry.Resolve(track.Target).Found() && !e.registry.IsAngleSafe(track.Target, value) {
		clamped := e.registry.ClampAngle(track.Target, value)
		e.log.Warn("keyframe value clamped to safe range", "track", trackName, "requested", value, "clamped", clamped)
		value = clamped
	}

	e.mu.Lock()
	track.insertSorted(Keyframe{
		TimeMS: timeMS, Value: value, Ease: ease, Tension: tension,
		BezierCP1: DefaultBezierCP1, BezierCP2: DefaultBezierCP2,
	})
	e.mu.Unlock()
	return nil
}

// quantize rounds timeMS to the nearest multiple of gridMS. Idempotent:
// quantizing an already-quantized time returns it unchanged (spec §8
// invariant 7).
func quantize(timeMS, gridMS float64) float64 {
	if gridMS <= 0 {
		return timeMS
	}
	return roundToNearest(timeMS/gridMS) * gridMS
}

func roundToNearest(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return -float64(int64(-v + 0.5))
}

// SetQuantize enables/disables keyframe time quantization and sets the
// grid size used by it.
func (e *Engine) SetQuantize(enabled bool, gridMS float64) {
	e.mu.Lock()
	e.quantizeEnabled = enabled
	if gridMS > 0 {
		e.quantizeGridMS = gridMS
	}
	e.mu.Unlock()
}

// SimplifyTrack removes keyframes that don't deviate from linear
// interpolation by more than toleranceDeg, returning the number removed.
func (e *Engine) SimplifyTrack(timelineName, trackName string, toleranceDeg float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		return 0
	}
	track := tl.findTrack(trackName)
	if track == nil {
		return 0
	}
	return simplifyTrack(track, toleranceDeg)
}

// SetMarkers replaces a timeline's markers, sorted by time.
func (e *Engine) SetMarkers(timelineName string, markers []Marker) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
	}
	for i := range markers {
		if markers[i].Color == "" {
			markers[i].Color = defaultMarkerColor
		}
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].TimeMS < markers[j].TimeMS })
	tl.Markers = markers
	return nil
}

// Jump scrubs to the named marker's position.
func (e *Engine) Jump(timelineName, label string) error {
	e.mu.Lock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
	}
	var target float64
	found := false
	for _, m := range tl.Markers {
		if m.Label == label {
			target, found = m.TimeMS, true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: marker %q", ErrNotFound, label)
	}
	return e.Scrub(target)
}

// Play starts (or resumes) playback. An empty timelineName keeps the
// current active timeline.
func (e *Engine) Play(timelineName string) error {
	e.mu.Lock()
	if timelineName != "" {
		if _, ok := e.timelines[timelineName]; !ok {
			e.mu.Unlock()
			return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
		}
		e.activeTimeline = timelineName
	}
	if e.activeTimeline == "" {
		e.mu.Unlock()
		return ErrNoActiveTimeline
	}

	now := nowSeconds()
	if e.state == Paused {
		e.startTime = now - (e.pauseTime - e.startTime)
	} else {
		e.startTime = now - e.currentTimeMS/1000.0
	}
	e.state = Playing
	needStart := !e.started
	e.mu.Unlock()

	if needStart {
		e.startTransport()
	}
	e.notifyState(Playing)
	return nil
}

// Pause freezes playback at its current position. Only valid while
// Playing.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	if e.state != Playing {
		e.mu.Unlock()
		return false
	}
	e.state = Paused
	e.pauseTime = nowSeconds()
	e.mu.Unlock()
	e.notifyState(Paused)
	return true
}

// Stop halts playback and resets position to 0.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	e.state = Stopped
	e.currentTimeMS = 0
	e.mu.Unlock()
	e.notifyState(Stopped)
	return true
}

// Scrub jumps the active timeline to timeMS, clamped to its duration.
// If not currently playing, servo positions are updated immediately.
func (e *Engine) Scrub(timeMS float64) error {
	e.mu.Lock()
	if e.activeTimeline == "" {
		e.mu.Unlock()
		return ErrNoActiveTimeline
	}
	tl := e.timelines[e.activeTimeline]
	clamped := clampF(timeMS, 0, tl.DurationMS)
	e.currentTimeMS = clamped
	notPlaying := e.state != Playing
	e.mu.Unlock()

	if notPlaying {
		e.updateServoPositions(clamped)
	}
	e.notifyPosition(clamped)
	return nil
}

func clampF(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// SetSpeed changes the playback speed multiplier, preserving the
// current timeline position if already playing.
func (e *Engine) SetSpeed(rate float64) error {
	if rate <= 0 {
		return ErrInvalidSpeed
	}
	e.mu.Lock()
	if e.state == Playing {
		now := nowSeconds()
		elapsedTimeline := (now - e.startTime) * e.playbackSpeed
		e.startTime = now - elapsedTimeline/rate
	}
	e.playbackSpeed = rate
	e.mu.Unlock()
	return nil
}

// SetLoop configures a timeline's loop window. endMS <= 0 means "loop
// to the timeline's full duration".
func (e *Engine) SetLoop(timelineName string, enabled bool, startMS, endMS float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tl, ok := e.timelines[timelineName]
	if !ok {
		return fmt.Errorf("%w: timeline %q", ErrNotFound, timelineName)
	}
	tl.Loop = enabled
	tl.LoopStart = startMS
	if endMS > 0 {
		tl.LoopEnd = endMS
	} else {
		tl.LoopEnd = tl.DurationMS
	}
	return nil
}

// RecordLiveStart begins live recording: for each target, an existing
// track is reused or a new "{target}_live" track is created, and every
// transport tick thereafter appends the target's current angle as a
// keyframe (spec §4.5).
func (e *Engine) RecordLiveStart(targets []string) error {
	e.mu.Lock()
	if e.activeTimeline == "" {
		e.mu.Unlock()
		return ErrNoActiveTimeline
	}
	tl := e.timelines[e.activeTimeline]

	recording := make(map[string]*Track, len(targets))
	for _, target := range targets {
		track := tl.findTrackByTarget(target)
		if track == nil {
			trackName := target + "_live"
			if tl.findTrack(trackName) == nil {
				tl.Tracks = append(tl.Tracks, NewTrack(trackName, target))
			}
			track = tl.findTrack(trackName)
		}
		recording[target] = track
	}
	e.recordingTracks = recording
	e.recordingStartTime = nowSeconds()
	e.state = Recording
	needStart := !e.started
	e.mu.Unlock()

	if needStart {
		e.startTransport()
	}
	e.notifyState(Recording)
	return nil
}

// RecordLiveStop ends live recording and returns the total number of
// keyframes on every recorded track, including any a reused track held
// before recording began.
func (e *Engine) RecordLiveStop() (int, bool) {
	e.mu.Lock()
	if e.state != Recording {
		e.mu.Unlock()
		return 0, false
	}
	e.state = Stopped
	count := 0
	for _, track := range e.recordingTracks {
		count += len(track.Keyframes)
	}
	e.recordingTracks = make(map[string]*Track)
	e.mu.Unlock()
	e.notifyState(Stopped)
	return count, true
}

// AddPositionCallback registers a function invoked on every tick/scrub
// with the current playback position.
func (e *Engine) AddPositionCallback(cb PositionCallback) {
	e.mu.Lock()
	e.positionCallbacks = append(e.positionCallbacks, cb)
	e.mu.Unlock()
}

// AddStateCallback registers a function invoked on every transport
// state change.
func (e *Engine) AddStateCallback(cb StateCallback) {
	e.mu.Lock()
	e.stateCallbacks = append(e.stateCallbacks, cb)
	e.mu.Unlock()
}

func (e *Engine) notifyPosition(timeMS float64) {
	e.mu.Lock()
	cbs := append([]PositionCallback(nil), e.positionCallbacks...)
	e.mu.Unlock()
	for _, cb := range cbs {
		safeCall(func() { cb(timeMS) }, e.log)
	}
}

func (e *Engine) notifyState(s State) {
	e.mu.Lock()
	cbs := append([]StateCallback(nil), e.stateCallbacks...)
	e.mu.Unlock()
	for _, cb := range cbs {
		safeCall(func() { cb(s) }, e.log)
	}
}

func safeCall(fn func(), log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("timeline callback panicked", "recover", r)
		}
	}()
	fn()
}

func (e *Engine) startTransport() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.transportWorker()
}

func (e *Engine) transportWorker() {
	defer close(e.doneCh)
	ticker := time.NewTicker(time.Second / transportRate)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	e.mu.Lock()
	switch e.state {
	case Playing:
		if e.activeTimeline == "" {
			e.mu.Unlock()
			return
		}
		tl := e.timelines[e.activeTimeline]
		now := nowSeconds()
		elapsed := (now - e.startTime) * e.playbackSpeed
		e.currentTimeMS = elapsed * 1000.0

		if tl.Loop {
			if e.currentTimeMS >= tl.LoopEnd {
				loopDuration := tl.LoopEnd - tl.LoopStart
				if loopDuration > 0 {
					e.currentTimeMS = tl.LoopStart
					e.startTime = now - (tl.LoopStart/1000.0)/e.playbackSpeed
				}
			}
		} else if e.currentTimeMS >= tl.DurationMS {
			e.state = Stopped
			e.currentTimeMS = 0
			e.mu.Unlock()
			e.notifyState(Stopped)
			return
		}
		timeMS := e.currentTimeMS
		e.mu.Unlock()
		e.updateServoPositions(timeMS)
		e.notifyPosition(timeMS)
	case Recording:
		e.mu.Unlock()
		e.recordCurrentPositions()
	default:
		e.mu.Unlock()
	}
}

type trackSnapshot struct {
	target    string
	keyframes []Keyframe
	enabled   bool
	muted     bool
	solo      bool
}

func (e *Engine) updateServoPositions(timeMS float64) {
	e.mu.Lock()
	tl, ok := e.timelines[e.activeTimeline]
	if !ok {
		e.mu.Unlock()
		return
	}
	snaps := make([]trackSnapshot, 0, len(tl.Tracks))
	for _, t := range tl.Tracks {
		snaps = append(snaps, trackSnapshot{
			target:    t.Target,
			keyframes: append([]Keyframe(nil), t.Keyframes...),
			enabled:   t.Enabled,
			muted:     t.Muted,
			solo:      t.Solo,
		})
	}
	e.mu.Unlock()

	hasSolo := false
	for _, s := range snaps {
		if s.solo && s.enabled {
			hasSolo = true
			break
		}
	}

	for _, s := range snaps {
		if !s.enabled || s.muted {
			continue
		}
		if hasSolo && !s.solo {
			continue
		}
		value, ok := interpolateTrackValue(s.keyframes, timeMS)
		if !ok {
			continue
		}
		res := e.registry.Resolve(s.target)
		if !res.Found() || !res.Servo.Enabled {
			continue
		}
		e.writer.DriveAngle(s.target, value)
	}
}

func (e *Engine) recordCurrentPositions() {
	e.mu.Lock()
	if e.state != Recording {
		e.mu.Unlock()
		return
	}
	recordTimeMS := (nowSeconds() - e.recordingStartTime) * 1000.0
	targets := make([]string, 0, len(e.recordingTracks))
	for target := range e.recordingTracks {
		targets = append(targets, target)
	}
	e.mu.Unlock()

	for _, target := range targets {
		res := e.registry.Resolve(target)
		if !res.Found() {
			continue
		}
		angle := res.Servo.CurrentAngle()
		e.mu.Lock()
		if track, ok := e.recordingTracks[target]; ok {
			track.insertSorted(Keyframe{TimeMS: recordTimeMS, Value: angle})
		}
		e.mu.Unlock()
	}
}

// Status is a snapshot of the timeline system for reporting (spec §6's
// get_timeline_status).
type Status struct {
	State           string
	ActiveTimeline  string
	CurrentTimeMS   float64
	PlaybackSpeed   float64
	QuantizeEnabled bool
	QuantizeGridMS  float64
	Timelines       map[string]TimelineStatus
}

// TimelineStatus is one timeline's summary within Status.
type TimelineStatus struct {
	DurationMS float64
	FPS        *float64
	BPM        *float64
	Tracks     int
	Markers    int
	Loop       bool
	LoopStart  float64
	LoopEnd    float64
}

// GetTimelineStatus returns a snapshot of the engine's current state.
func (e *Engine) GetTimelineStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:           e.state.String(),
		ActiveTimeline:  e.activeTimeline,
		CurrentTimeMS:   e.currentTimeMS,
		PlaybackSpeed:   e.playbackSpeed,
		QuantizeEnabled: e.quantizeEnabled,
		QuantizeGridMS:  e.quantizeGridMS,
		Timelines:       make(map[string]TimelineStatus, len(e.timelines)),
	}
	for name, tl := range e.timelines {
		st.Timelines[name] = TimelineStatus{
			DurationMS: tl.DurationMS,
			FPS:        tl.FPS,
			BPM:        tl.BPM,
			Tracks:     len(tl.Tracks),
			Markers:    len(tl.Markers),
			Loop:       tl.Loop,
			LoopStart:  tl.LoopStart,
			LoopEnd:    tl.LoopEnd,
		}
	}
	return st
}

// Cleanup stops the transport goroutine and resets playback state.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	e.state = Stopped
	started := e.started
	e.started = false
	e.mu.Unlock()
	if !started {
		return
	}
	close(e.stopCh)
	<-e.doneCh
}
