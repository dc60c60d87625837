package control

import (
	"testing"
	"time"

	"log/slog"

	"stagehand.dev/stagehand/internal/events"
	"stagehand.dev/stagehand/internal/hardware"
	"stagehand.dev/stagehand/internal/registry"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	reg := registry.New()
	if err := reg.Register("jaw", 0, registry.RegisterOptions{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.SetEnabled("jaw", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	drv, err := hardware.NewDriverWithBus(&fakeBus{}, slog.Default())
	if err != nil {
		t.Fatalf("NewDriverWithBus: %v", err)
	}
	return New(reg, drv, "", slog.Default())
}

// fakeBus is a no-op hardware.Bus so tests never touch real I2C.
type fakeBus struct{}

func (*fakeBus) WriteReg(reg byte, data ...byte) error   { return nil }
func (*fakeBus) ReadReg(reg byte, n int) ([]byte, error) { return make([]byte, n), nil }

func TestServoSetAngleDrivesAndPetsWatchdog(t *testing.T) {
	c := newTestController(t)
	c.WatchdogArm(50 * time.Millisecond)
	defer c.safety.WatchdogStop()

	res := c.ServoSetAngle("jaw", 120)
	if !res.Success {
		t.Fatalf("ServoSetAngle failed: %s", res.Error)
	}

	time.Sleep(30 * time.Millisecond)
	if c.safety.State().String() != "normal" {
		t.Fatalf("expected watchdog pet to keep state normal, got %s", c.safety.State())
	}
}

func TestServoSetAngleRejectsDisabledServo(t *testing.T) {
	c := newTestController(t)
	if err := c.registry.SetEnabled("jaw", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	res := c.ServoSetAngle("jaw", 90)
	if res.Success {
		t.Fatal("expected failure for disabled servo")
	}
}

func TestServoSetAnglePublishesEvent(t *testing.T) {
	c := newTestController(t)
	var got []events.Event
	c.Events().Subscribe(events.SubscriberFunc(func(e events.Event) { got = append(got, e) }))

	if res := c.ServoSetAngle("jaw", 45); !res.Success {
		t.Fatalf("ServoSetAngle failed: %s", res.Error)
	}
	if len(got) != 1 || got[0].Type != events.ServoUpdate {
		t.Fatalf("expected a single ServoUpdate event, got %+v", got)
	}
}

func TestServoRegisterDuplicateChannelFails(t *testing.T) {
	c := newTestController(t)
	res := c.ServoRegister("jaw2", 0, nil, "normal", 1.0, "")
	if res.Success {
		t.Fatal("expected duplicate-channel registration to fail")
	}
}

func TestSafetyEmergencyStopDetachesAndPublishes(t *testing.T) {
	c := newTestController(t)
	var got []events.Event
	c.Events().Subscribe(events.SubscriberFunc(func(e events.Event) { got = append(got, e) }))

	res := c.SafetyEmergencyStop("detach")
	if !res.Success {
		t.Fatalf("SafetyEmergencyStop failed: %s", res.Error)
	}
	found := false
	for _, e := range got {
		if e.Type == events.EmergencyStop {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an EmergencyStop event")
	}
	if c.safety.State().String() != "emergency" {
		t.Fatalf("expected emergency state, got %s", c.safety.State())
	}
}

func TestSafetyResetOnlyAfterEmergency(t *testing.T) {
	c := newTestController(t)
	if res := c.SafetyReset(); res.Success {
		t.Fatal("expected reset to fail from normal state")
	}
	c.SafetyEmergencyStop("hold")
	if res := c.SafetyReset(); !res.Success {
		t.Fatalf("expected reset to succeed from emergency: %s", res.Error)
	}
}

func TestPresetPlayStopLifecycle(t *testing.T) {
	c := newTestController(t)
	if res := c.PresetPlay("breathe", []string{"jaw"}, 0, true); !res.Success {
		t.Fatalf("PresetPlay failed: %s", res.Error)
	}
	defer c.presets.StopAll()

	running := c.presets.Running()
	if len(running) != 1 || running[0] != "breathe" {
		t.Fatalf("expected breathe running, got %v", running)
	}
	if res := c.PresetStop("breathe"); !res.Success {
		t.Fatalf("PresetStop failed: %s", res.Error)
	}
}

func TestTimelineVerbsEndToEnd(t *testing.T) {
	c := newTestController(t)
	if res := c.TimelineNew("tl", nil, nil, 1000); !res.Success {
		t.Fatalf("TimelineNew failed: %s", res.Error)
	}
	if res := c.TimelineTrackAdd("tl", "trk", "jaw"); !res.Success {
		t.Fatalf("TimelineTrackAdd failed: %s", res.Error)
	}
	if res := c.TimelineKeyframeAdd("tl", "trk", 0, 60, "linear", 0); !res.Success {
		t.Fatalf("TimelineKeyframeAdd failed: %s", res.Error)
	}
	if res := c.TimelineKeyframeAdd("tl", "trk", 1000, 120, "linear", 0); !res.Success {
		t.Fatalf("TimelineKeyframeAdd failed: %s", res.Error)
	}
	if res := c.TimelineScrub(500); !res.Success {
		t.Fatalf("TimelineScrub failed: %s", res.Error)
	}
	st := c.timelines.GetTimelineStatus()
	if st.CurrentTimeMS != 500 {
		t.Fatalf("CurrentTimeMS = %v, want 500", st.CurrentTimeMS)
	}
}

func TestGetStatusAggregatesSubsystems(t *testing.T) {
	c := newTestController(t)
	status := c.GetStatus()
	if len(status.Servos) != 1 || status.Servos[0].ID != "jaw" {
		t.Fatalf("expected one servo 'jaw', got %+v", status.Servos)
	}
	if status.Safety.State != "normal" {
		t.Fatalf("expected safety state normal, got %s", status.Safety.State)
	}
}

func TestSafetySafePoseReportsDrivenCount(t *testing.T) {
	c := newTestController(t)
	n, res := c.SafetySafePose("park")
	if !res.Success {
		t.Fatalf("SafetySafePose failed: %s", res.Error)
	}
	if n != 1 {
		t.Fatalf("expected 1 servo driven, got %d", n)
	}
}
