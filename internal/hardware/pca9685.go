// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hardware

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// I2CAddr is the PCA9685's default I²C address.
const I2CAddr uint16 = 0x40

// Carrier is the fixed PWM carrier frequency RC servos expect.
const Carrier = 50 * physic.Hertz

// PCA9685 registers.
const (
	mode1    byte = 0x00
	mode2    byte = 0x01
	prescale byte = 0xFE
	led0OnL  byte = 0x06 // first of 16 four-register channel blocks
	allLedOn byte = 0xFA
)

// Mode register 1 bits.
const (
	restart byte = 0x80
	ai      byte = 0x20 // auto-increment
	sleep   byte = 0x10
	allCall byte = 0x01
)

// Mode register 2 bits.
const outDrv byte = 0x04

// i2cBus adapts a periph.io i2c.Dev to the narrow Bus interface.
type i2cBus struct {
	dev *i2c.Dev
}

func (b *i2cBus) WriteReg(reg byte, data ...byte) error {
	_, err := b.dev.Write(append([]byte{reg}, data...))
	return err
}

func (b *i2cBus) ReadReg(reg byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := b.dev.Tx([]byte{reg}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// pca9685 drives the register protocol in isolation from the angle/pulse
// model a Servo cares about; Driver (driver.go) is the public authority.
type pca9685 struct {
	bus  Bus
	freq physic.Frequency
}

// newPCA9685FromI2C opens a pca9685 over a real periph.io I²C bus.
func newPCA9685FromI2C(i2cBusConn i2c.Bus, addr uint16) (*pca9685, error) {
	p := &pca9685{bus: &i2cBus{dev: &i2c.Dev{Bus: i2cBusConn, Addr: addr}}}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPCA9685FromBus(bus Bus) (*pca9685, error) {
	p := &pca9685{bus: bus}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pca9685) init() error {
	if err := p.setAllPWM(0, 0); err != nil {
		return fmt.Errorf("hardware: pca9685 init clear: %w", err)
	}
	if err := p.bus.WriteReg(mode2, outDrv); err != nil {
		return fmt.Errorf("hardware: pca9685 init mode2: %w", err)
	}
	if err := p.bus.WriteReg(mode1, allCall); err != nil {
		return fmt.Errorf("hardware: pca9685 init mode1: %w", err)
	}

	time.Sleep(100 * time.Millisecond)

	modeRead, err := p.bus.ReadReg(mode1, 1)
	if err != nil {
		return fmt.Errorf("hardware: pca9685 read mode1: %w", err)
	}
	mode := (modeRead[0] &^ sleep) | ai
	if err := p.bus.WriteReg(mode1, mode); err != nil {
		return fmt.Errorf("hardware: pca9685 clear sleep: %w", err)
	}

	time.Sleep(5 * time.Millisecond)

	return p.setPWMFreq(Carrier)
}

func (p *pca9685) setPWMFreq(freq physic.Frequency) error {
	if p.freq == freq {
		return nil
	}

	prescaleVal := (25*physic.MegaHertz/4096 + freq/2) / freq

	modeRead, err := p.bus.ReadReg(mode1, 1)
	if err != nil {
		return err
	}
	oldMode := modeRead[0]

	if err := p.bus.WriteReg(mode1, (oldMode&^restart)|sleep); err != nil {
		return err
	}
	if err := p.bus.WriteReg(prescale, byte(prescaleVal)); err != nil {
		return err
	}
	if err := p.bus.WriteReg(mode1, oldMode); err != nil {
		return err
	}

	time.Sleep(100 * time.Millisecond)

	if err := p.bus.WriteReg(mode1, oldMode|restart); err != nil {
		return err
	}
	p.freq = freq
	return nil
}

func (p *pca9685) setPWM(channel int, on, off uint16) error {
	if err := verifyChannel(channel); err != nil {
		return err
	}
	reg := led0OnL + byte(4*channel)
	return p.bus.WriteReg(reg, byte(on), byte(on>>8), byte(off), byte(off>>8))
}

func (p *pca9685) setAllPWM(on, off uint16) error {
	return p.bus.WriteReg(allLedOn, byte(on), byte(on>>8), byte(off), byte(off>>8))
}

// setFullOff uses the dedicated full-off bit to detach a channel with a
// single register write, same as the teacher's SetFullOff.
func (p *pca9685) setFullOff(channel int) error {
	if err := verifyChannel(channel); err != nil {
		return err
	}
	return p.bus.WriteReg(led0OnL+byte(4*channel)+3, 0x10)
}

func verifyChannel(channel int) error {
	if channel < 0 || channel > 15 {
		return fmt.Errorf("hardware: invalid channel: %d", channel)
	}
	return nil
}
