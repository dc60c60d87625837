package timeline

import (
	"math"
	"testing"

	"stagehand.dev/stagehand/internal/registry"
)

type fakeWriter struct{}

func (fakeWriter) DriveAngle(id string, angle float64) bool { return true }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	r := registry.New()
	if err := r.Register("s", 0, registry.RegisterOptions{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.SetEnabled("s", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	return New(r, fakeWriter{}, nil)
}

// TestScrubInterpolationScenario is spec §8's literal scenario 3: a
// timeline with duration 1000ms/fps 30, keyframes (0, 60, Linear) and
// (1000, 120, EaseInOut); scrub(500) should yield 90.
func TestScrubInterpolationScenario(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateTimeline("tl", nil, nil, 1000); err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}
	if err := e.AddTrack("tl", "trk", "s"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := e.AddKeyframe("tl", "trk", 0, 60, Linear, 0); err != nil {
		t.Fatalf("AddKeyframe: %v", err)
	}
	if err := e.AddKeyframe("tl", "trk", 1000, 120, EaseInOut, 0); err != nil {
		t.Fatalf("AddKeyframe: %v", err)
	}
	if err := e.Scrub(500); err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	got := e.GetTimelineStatus().CurrentTimeMS
	if got != 500 {
		t.Fatalf("CurrentTimeMS = %v, want 500", got)
	}
	v, ok := interpolateTrackValue(e.timelines["tl"].Tracks[0].Keyframes, got)
	if !ok || math.Abs(v-90) > 1e-9 {
		t.Fatalf("value at 500ms = %v, %v; want 90, true", v, ok)
	}
}

func TestInterpolateLinearMidpoint(t *testing.T) {
	kfs := []Keyframe{{TimeMS: 0, Value: 60, Ease: Linear}, {TimeMS: 1000, Value: 120, Ease: Linear}}
	v, ok := interpolateTrackValue(kfs, 500)
	if !ok || v != 90 {
		t.Fatalf("interpolate = %v, %v; want 90, true", v, ok)
	}
}

func TestInterpolateEaseInOutMidpointIsHalfway(t *testing.T) {
	// ease_in_out_quad(0.5) == 0.5 exactly, and tension=0 means no cubic
	// blend, so at the exact midpoint the EaseInOut result equals the
	// linear one.
	kfs := []Keyframe{{TimeMS: 0, Value: 60, Ease: Linear}, {TimeMS: 1000, Value: 120, Ease: EaseInOut}}
	v, ok := interpolateTrackValue(kfs, 500)
	if !ok || math.Abs(v-90) > 1e-9 {
		t.Fatalf("interpolate = %v, %v; want 90, true", v, ok)
	}
}

// TestInterpolateBoundaryClamping is spec §8 invariant 6: times before
// the first or after the last keyframe hold the boundary value.
func TestInterpolateBoundaryClamping(t *testing.T) {
	kfs := []Keyframe{{TimeMS: 100, Value: 10}, {TimeMS: 900, Value: 170}}
	if v, _ := interpolateTrackValue(kfs, 0); v != 10 {
		t.Fatalf("before first = %v, want 10", v)
	}
	if v, _ := interpolateTrackValue(kfs, 5000); v != 170 {
		t.Fatalf("after last = %v, want 170", v)
	}
}

// TestQuantizeIdempotent is spec §8 invariant 7.
func TestQuantizeIdempotent(t *testing.T) {
	once := quantize(734, 100)
	twice := quantize(once, 100)
	if once != 700 || twice != once {
		t.Fatalf("quantize not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestSimplifyTrackKeepsEndpoints(t *testing.T) {
	track := NewTrack("trk", "s")
	track.Keyframes = []Keyframe{
		{TimeMS: 0, Value: 0},
		{TimeMS: 250, Value: 25},
		{TimeMS: 500, Value: 50},
		{TimeMS: 750, Value: 75},
		{TimeMS: 1000, Value: 100},
	}
	removed := simplifyTrack(track, 1.0)
	if removed != 3 {
		t.Fatalf("expected 3 collinear interior keyframes removed, got %d", removed)
	}
	if track.Keyframes[0].TimeMS != 0 || track.Keyframes[len(track.Keyframes)-1].TimeMS != 1000 {
		t.Fatalf("endpoints not preserved: %+v", track.Keyframes)
	}
}

func TestPauseWhilePlayingReportsPausedState(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateTimeline("tl", nil, nil, 5000); err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}
	if err := e.Scrub(2000); err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if err := e.Play(""); err != nil {
		t.Fatalf("Play: %v", err)
	}
	defer e.Cleanup()
	if !e.Pause() {
		t.Fatal("expected Pause to succeed while playing")
	}
	status := e.GetTimelineStatus()
	if status.State != "paused" {
		t.Fatalf("expected paused state, got %s", status.State)
	}
}

func TestSetSpeedRejectsNonPositive(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetSpeed(0); err == nil {
		t.Fatal("expected error for zero speed")
	}
	if err := e.SetSpeed(-1); err == nil {
		t.Fatal("expected error for negative speed")
	}
}

func TestJumpToMarker(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateTimeline("tl", nil, nil, 5000); err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}
	if err := e.SetMarkers("tl", []Marker{{TimeMS: 1234, Label: "beat"}}); err != nil {
		t.Fatalf("SetMarkers: %v", err)
	}
	if err := e.Jump("tl", "beat"); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if got := e.GetTimelineStatus().CurrentTimeMS; got != 1234 {
		t.Fatalf("CurrentTimeMS = %v, want 1234", got)
	}
}

func TestKeyframeValueClampedToSafeRange(t *testing.T) {
	e := newTestEngine(t)
	// Registry default limits are [0,180]; request something outside it.
	if err := e.CreateTimeline("tl", nil, nil, 1000); err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}
	if err := e.AddTrack("tl", "trk", "s"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := e.AddKeyframe("tl", "trk", 0, 500, Linear, 0); err != nil {
		t.Fatalf("AddKeyframe: %v", err)
	}
	v, _ := interpolateTrackValue(e.timelines["tl"].Tracks[0].Keyframes, 0)
	if v != 180 {
		t.Fatalf("expected clamp to 180, got %v", v)
	}
}
