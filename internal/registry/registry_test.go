package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mustRegister(t *testing.T, r *Registry, id string, channel int) {
	t.Helper()
	if err := r.Register(id, channel, RegisterOptions{}); err != nil {
		t.Fatalf("Register(%s, %d): %v", id, channel, err)
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 0)
	err := r.Register("left_eye", 1, RegisterOptions{})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestRegisterDuplicateChannel(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 0)
	err := r.Register("right_eye", 0, RegisterOptions{})
	if !errors.Is(err, ErrDuplicateChannel) {
		t.Fatalf("expected ErrDuplicateChannel, got %v", err)
	}
}

func TestRegisterChannelOutOfRange(t *testing.T) {
	r := New()
	err := r.Register("x", 16, RegisterOptions{})
	if !errors.Is(err, ErrChannelOutOfRange) {
		t.Fatalf("expected ErrChannelOutOfRange, got %v", err)
	}
}

// TestResolvePrecedence covers spec §4.2's required collision case: a
// numeric identifier that is also an alias must resolve via the ID
// table first, then alias, then channel-decimal.
func TestResolvePrecedence(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 3)
	mustRegister(t, r, "right_eye", 5)
	if err := r.Alias("right_eye", "3"); err != nil {
		t.Fatalf("Alias: %v", err)
	}
	// Also register a servo whose ID is literally "3", to prove the ID
	// table wins over both alias and channel-decimal.
	mustRegister(t, r, "3", 7)

	res := r.Resolve("3")
	if res.Kind != ResolveByID || res.Servo.ID != "3" {
		t.Fatalf("expected ResolveByID for id '3', got %+v", res)
	}

	// Without the colliding ID, "3" should resolve via alias, not channel.
	r2 := New()
	mustRegister(t, r2, "left_eye", 3)
	mustRegister(t, r2, "right_eye", 5)
	if err := r2.Alias("right_eye", "3"); err != nil {
		t.Fatalf("Alias: %v", err)
	}
	res2 := r2.Resolve("3")
	if res2.Kind != ResolveByAlias || res2.Servo.ID != "right_eye" {
		t.Fatalf("expected ResolveByAlias -> right_eye, got %+v", res2)
	}

	// A plain numeric identifier with no alias collision resolves by channel.
	res3 := r2.Resolve("5")
	if res3.Kind != ResolveByChannel || res3.Servo.ID != "right_eye" {
		t.Fatalf("expected ResolveByChannel -> right_eye, got %+v", res3)
	}
}

func TestResolveMiss(t *testing.T) {
	r := New()
	res := r.Resolve("nope")
	if res.Found() {
		t.Fatalf("expected miss, got %+v", res)
	}
}

func TestClampAngleIdempotent(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 3)
	if err := r.SetSoftLimits("left_eye", 60, 120); err != nil {
		t.Fatalf("SetSoftLimits: %v", err)
	}
	once := r.ClampAngle("left_eye", 200)
	twice := r.ClampAngle("left_eye", once)
	if once != 120 || twice != once {
		t.Fatalf("clamp not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestSetSoftLimitsRejectsInverted(t *testing.T) {
	r := New()
	mustRegister(t, r, "s", 0)
	if err := r.SetSoftLimits("s", 120, 60); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := r.SetSoftLimits("s", -5, 60); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for negative min, got %v", err)
	}
}

func TestCalibrateWarnsOutsideTypicalRange(t *testing.T) {
	r := New()
	mustRegister(t, r, "s", 0)
	warn, err := r.Calibrate("s", 100, 3000, 90)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if warn == nil {
		t.Fatal("expected calibration warning for out-of-typical-range pulses")
	}
}

func TestCalibrateRejectsInverted(t *testing.T) {
	r := New()
	mustRegister(t, r, "s", 0)
	if _, err := r.Calibrate("s", 2000, 1000, 90); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

// TestApplyOrientationInvolution covers spec §8 invariant 5.
func TestApplyOrientationInvolution(t *testing.T) {
	r := New()
	mustRegister(t, r, "inv", 0)
	r.Rename("inv", "inv") // no-op, exercise rename path trivially
	s := r.Snapshot()["inv"]
	s.Orientation = Inverted

	a := 30.0
	once := r.ApplyOrientation("inv", a)
	twice := r.ApplyOrientation("inv", once)
	if twice != a {
		t.Fatalf("orientation not involutive: got %v want %v", twice, a)
	}
}

// TestScenario1 is spec §8's literal end-to-end scenario 1.
func TestScenario1(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 3)
	if err := r.SetSoftLimits("left_eye", 60, 120); err != nil {
		t.Fatalf("SetSoftLimits: %v", err)
	}
	clamped := r.ClampAngle("left_eye", 200)
	if clamped != 120 {
		t.Fatalf("clamp = %v, want 120", clamped)
	}
	r.Commit("left_eye", clamped)
	s := r.Snapshot()["left_eye"]
	if s.CurrentAngle() != 120 {
		t.Fatalf("current_angle = %v, want 120", s.CurrentAngle())
	}
}

// TestScenario2 is spec §8's literal end-to-end scenario 2.
func TestScenario2(t *testing.T) {
	r := New()
	if err := r.Register("s", 0, RegisterOptions{Orientation: Inverted}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Calibrate("s", 1000, 2000, 90); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	oriented := r.ApplyOrientation("s", 30)
	if oriented != 150 {
		t.Fatalf("oriented angle = %v, want 150", oriented)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r := New()
	mustRegister(t, r, "left_eye", 3)
	if err := r.Alias("left_eye", "eye"); err != nil {
		t.Fatalf("Alias: %v", err)
	}
	if err := r.SetSoftLimits("left_eye", 10, 170); err != nil {
		t.Fatalf("SetSoftLimits: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "servo_config.json")
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res := loaded.Resolve("eye")
	if !res.Found() || res.Servo.ID != "left_eye" {
		t.Fatalf("expected alias to resolve after reload, got %+v", res)
	}
	if res.Servo.MinDeg != 10 || res.Servo.MaxDeg != 170 {
		t.Fatalf("limits not preserved: %+v", res.Servo)
	}
}

func TestLoadMissingFileReturnsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(os.TempDir(), "definitely-missing-config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.ListIDs()) != 0 {
		t.Fatalf("expected empty registry, got %v", r.ListIDs())
	}
}
