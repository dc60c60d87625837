// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hardware owns the PCA9685 PWM expander and is the sole writer
// of pulse widths. No other package talks to the I²C bus directly.
package hardware

// Bus is the narrow surface the PCA9685 register protocol needs. It is
// satisfied by an adapter over a real periph.io i2c.Dev (see
// NewPCA9685Driver) and by a fake in tests (see NewDriverWithBus), so
// the register-level protocol can be exercised without a real bus.
type Bus interface {
	// WriteReg writes a register address followed by data in a single
	// transaction, relying on the PCA9685's auto-increment mode.
	WriteReg(reg byte, data ...byte) error
	// ReadReg reads n bytes starting at reg.
	ReadReg(reg byte, n int) ([]byte, error)
}
