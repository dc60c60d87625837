// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// ErrHardwareFailure wraps any I²C write failure surfaced by the driver.
var ErrHardwareFailure = errors.New("hardware: write failed")

// Calibration is the per-servo pulse-width range used to map an angle in
// [0,180] degrees onto a PCA9685 duty cycle, per spec §4.1.
type Calibration struct {
	MinPulseUS int
	MaxPulseUS int
}

// Driver is the single authority for pulse output. Every engine writes
// through it; it serializes all I²C traffic behind one mutex (spec §5).
type Driver struct {
	mu  sync.Mutex
	pca *pca9685
	log *slog.Logger
}

// NewPCA9685Driver opens a PCA9685 over a real periph.io I²C bus.
func NewPCA9685Driver(bus i2c.Bus, addr uint16, log *slog.Logger) (*Driver, error) {
	pca, err := newPCA9685FromI2C(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("hardware: open pca9685: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{pca: pca, log: log}, nil
}

// NewDriverWithBus builds a Driver against a fake Bus, for tests and for
// alternate PWM expanders that speak the same register protocol.
func NewDriverWithBus(bus Bus, log *slog.Logger) (*Driver, error) {
	pca, err := newPCA9685FromBus(bus)
	if err != nil {
		return nil, fmt.Errorf("hardware: open pca9685: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{pca: pca, log: log}, nil
}

// PulseForAngle maps an angle in [0,180] degrees onto a pulse width in
// microseconds, linearly, per spec §4.1. angleDeg is clamped to [0,180]
// here; soft-limit clamping to the servo's own range happens upstream in
// the registry.
func PulseForAngle(angleDeg float64, cal Calibration) float64 {
	if angleDeg < 0 {
		angleDeg = 0
	} else if angleDeg > 180 {
		angleDeg = 180
	}
	span := float64(cal.MaxPulseUS - cal.MinPulseUS)
	return float64(cal.MinPulseUS) + (angleDeg/180.0)*span
}

// carrierPeriodUS is the period of the fixed 50 Hz servo carrier, in
// microseconds.
const carrierPeriodUS = 1_000_000.0 / 50.0

// dutyForPulse converts a pulse width in microseconds, at the 50 Hz
// carrier, into the PCA9685's 12-bit off-time register value.
func dutyForPulse(pulseUS float64) uint16 {
	duty := (pulseUS / carrierPeriodUS) * 4096.0
	if duty < 0 {
		duty = 0
	} else if duty > 4095 {
		duty = 4095
	}
	return uint16(duty)
}

// SetAngle drives channel to angleDeg using cal's pulse-width mapping.
// This is the only path that ever reaches the I²C bus for a position
// change; callers are expected to have already clamped/oriented angleDeg
// (registry.ClampAngle / registry.ApplyOrientation).
func (d *Driver) SetAngle(channel int, angleDeg float64, cal Calibration) error {
	pulse := PulseForAngle(angleDeg, cal)
	duty := dutyForPulse(pulse)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.pca.setPWM(channel, 0, duty); err != nil {
		d.log.Warn("hardware write failed", "channel", channel, "err", err)
		return fmt.Errorf("%w: channel %d: %v", ErrHardwareFailure, channel, err)
	}
	return nil
}

// Detach zeroes the duty cycle on channel, releasing the servo.
func (d *Driver) Detach(channel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.pca.setFullOff(channel); err != nil {
		d.log.Warn("hardware detach failed", "channel", channel, "err", err)
		return fmt.Errorf("%w: detach channel %d: %v", ErrHardwareFailure, channel, err)
	}
	return nil
}

// Shutdown detaches every channel. Best-effort: it keeps going after a
// per-channel failure so one stuck channel cannot block the rest from
// detaching. It does not close the underlying I²C bus; that stays open.
func (d *Driver) Shutdown() error {
	var firstErr error
	for ch := 0; ch < 16; ch++ {
		if err := d.Detach(ch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
