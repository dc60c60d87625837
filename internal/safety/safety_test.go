package safety

import (
	"sync"
	"testing"
	"time"

	"stagehand.dev/stagehand/internal/registry"
)

// fakeWriter records every write it's asked to perform and can be told
// to fail a specific servo.
type fakeWriter struct {
	mu         sync.Mutex
	driven     []string
	detached   []string
	fail       map[string]bool
	failAtCall map[string]int // 0-indexed call for id to fail; absent means none
	callCount  map[string]int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		fail:       make(map[string]bool),
		failAtCall: make(map[string]int),
		callCount:  make(map[string]int),
	}
}

func (w *fakeWriter) DriveAngle(id string, angle float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.callCount[id]
	w.callCount[id]++
	if w.fail[id] {
		return false
	}
	if n, ok := w.failAtCall[id]; ok && idx == n {
		return false
	}
	w.driven = append(w.driven, id)
	return true
}

func (w *fakeWriter) Detach(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detached = append(w.detached, id)
	return true
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	if err := r.Register("left_eye", 0, registry.RegisterOptions{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("right_eye", 1, registry.RegisterOptions{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("jaw", 2, registry.RegisterOptions{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestDefaultPosesSeededFromRegistry(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	n, err := sys.GoSafePose("park")
	if err != nil {
		t.Fatalf("GoSafePose: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 servos driven, got %d", n)
	}
}

func TestEmergencyStopDetachMode(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	if ok := sys.EmergencyStop(Detach); !ok {
		t.Fatal("expected EmergencyStop(Detach) to succeed")
	}
	if sys.State() != Emergency {
		t.Fatalf("expected Emergency state, got %v", sys.State())
	}
	if len(w.detached) != 3 {
		t.Fatalf("expected 3 detaches, got %d", len(w.detached))
	}
}

func TestResetOnlyFromEmergencyOrFault(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	if sys.Reset() {
		t.Fatal("expected Reset to fail from Normal")
	}
	sys.EmergencyStop(Hold)
	if !sys.Reset() {
		t.Fatal("expected Reset to succeed from Emergency")
	}
	if sys.State() != Normal {
		t.Fatalf("expected Normal after reset, got %v", sys.State())
	}
}

// TestWatchdogTimeoutTriggersFaultAndPark follows spec §8's scenario 5
// with a shorter timeout: an unpet watchdog transitions to Fault within
// 500ms and drives the default safe pose (one write per servo).
func TestWatchdogTimeoutTriggersFaultAndPark(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	sys.WatchdogStart(50*time.Millisecond, nil)
	defer sys.WatchdogStop()

	deadline := time.After(500 * time.Millisecond)
	for sys.State() != Fault {
		select {
		case <-deadline:
			t.Fatal("watchdog never tripped within 500ms")
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.mu.Lock()
	driven := len(w.driven)
	w.mu.Unlock()
	if driven != 3 {
		t.Fatalf("expected park pose (3 servos) driven once, got %d writes", driven)
	}
}

// TestPreflightThreeServosNineTests is spec §8's literal scenario 6:
// preflight over 3 servos performs exactly 3 tests each (9 total) and
// reports pass when every write succeeds.
func TestPreflightThreeServosNineTests(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	report := sys.Preflight()
	if report.OverallStatus != "pass" {
		t.Fatalf("expected overall pass, got %s (errors=%v warnings=%v)", report.OverallStatus, report.Errors, report.Warnings)
	}
	if len(report.ServoChecks) != 3 {
		t.Fatalf("expected 3 servo checks, got %d", len(report.ServoChecks))
	}
	total := 0
	for _, check := range report.ServoChecks {
		total += len(check.Tests)
		if check.Status != "pass" {
			t.Fatalf("servo %s: expected pass, got %s", check.ServoID, check.Status)
		}
		if !check.Recentered {
			t.Fatalf("servo %s: expected recenter to succeed", check.ServoID)
		}
	}
	if total != 9 {
		t.Fatalf("expected 9 total tests, got %d", total)
	}
}

func TestPreflightReportsFailureForUnresponsiveServo(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	w.fail["jaw"] = true
	sys := NewSystem(r, w, nil)

	report := sys.Preflight()
	if report.OverallStatus != "fail" {
		t.Fatalf("expected overall fail, got %s", report.OverallStatus)
	}
	if report.ServoChecks["jaw"].Status != "fail" {
		t.Fatalf("expected jaw to fail, got %s", report.ServoChecks["jaw"].Status)
	}
}

// TestPreflightPartialSweepFailureReportsFail: one failed sweep write
// out of three still fails that servo and the aggregate report, not
// just a servo that fails every write.
func TestPreflightPartialSweepFailureReportsFail(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	w.failAtCall["jaw"] = 1 // middle sweep write only
	sys := NewSystem(r, w, nil)

	report := sys.Preflight()
	if report.OverallStatus != "fail" {
		t.Fatalf("expected overall fail, got %s (errors=%v warnings=%v)", report.OverallStatus, report.Errors, report.Warnings)
	}
	if report.ServoChecks["jaw"].Status != "fail" {
		t.Fatalf("expected jaw to fail on a single bad sweep write, got %s", report.ServoChecks["jaw"].Status)
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected at least one recorded error for the failed sweep write")
	}
}

// TestPreflightRecenterFailureReportsWarning: a servo that passes every
// sweep write but fails to recenter should only warn, not fail.
func TestPreflightRecenterFailureReportsWarning(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	w.failAtCall["jaw"] = 3 // the recenter write, after 3 sweep writes
	sys := NewSystem(r, w, nil)

	report := sys.Preflight()
	if report.OverallStatus != "warning" {
		t.Fatalf("expected overall warning, got %s (errors=%v warnings=%v)", report.OverallStatus, report.Errors, report.Warnings)
	}
	if report.ServoChecks["jaw"].Status != "warning" {
		t.Fatalf("expected jaw to warn on a failed recenter, got %s", report.ServoChecks["jaw"].Status)
	}
	if report.ServoChecks["jaw"].Recentered {
		t.Fatal("expected jaw's Recentered to be false")
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors for a recenter-only failure, got %v", report.Errors)
	}
}

func TestAddSafePoseClampsAngles(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SetSoftLimits("left_eye", 30, 150); err != nil {
		t.Fatalf("SetSoftLimits: %v", err)
	}
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)

	sys.AddSafePose("custom", "test pose", map[string]float64{"left_eye": 200}, 50)
	n, err := sys.GoSafePose("custom")
	if err != nil || n != 1 {
		t.Fatalf("GoSafePose(custom): n=%d err=%v", n, err)
	}
}

func TestGoSafePoseUnknownReturnsError(t *testing.T) {
	r := newTestRegistry(t)
	w := newFakeWriter()
	sys := NewSystem(r, w, nil)
	if _, err := sys.GoSafePose("nonexistent"); err == nil {
		t.Fatal("expected error for unknown pose")
	}
}
