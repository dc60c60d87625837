// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command stagehand drives up to 16 RC servos through a PCA9685 PWM
// expander, fronted by a servo registry, safety system, preset engine,
// and timeline engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"stagehand.dev/stagehand/internal/control"
	"stagehand.dev/stagehand/internal/hardware"
	"stagehand.dev/stagehand/internal/registry"
)

func mainImpl() error {
	i2cBus := flag.String("bus", "", "I²C bus (e.g. /dev/i2c-1); empty uses the default")
	address := flag.Int("address", int(hardware.I2CAddr), "PCA9685 I²C address")
	configPath := flag.String("config", "servos.json", "registry persistence file")
	watchdogTimeout := flag.Duration("watchdog", 2*time.Second, "watchdog timeout; 0 disables it")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(log)

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("stagehand: host init: %w", err)
	}

	bus, err := i2creg.Open(*i2cBus)
	if err != nil {
		return fmt.Errorf("stagehand: open i2c bus: %w", err)
	}
	defer bus.Close()

	driver, err := hardware.NewPCA9685Driver(bus, uint16(*address), log)
	if err != nil {
		return fmt.Errorf("stagehand: open pca9685: %w", err)
	}

	reg, err := registry.Load(*configPath)
	if err != nil {
		return fmt.Errorf("stagehand: load registry: %w", err)
	}

	c := control.New(reg, driver, *configPath, log)
	if *watchdogTimeout > 0 {
		c.WatchdogArm(*watchdogTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.RunStatusPump(ctx)

	halt := make(chan os.Signal, 1)
	signal.Notify(halt, syscall.SIGINT, syscall.SIGTERM)

	log.Info("stagehand running", "bus", *i2cBus, "address", fmt.Sprintf("0x%02x", *address), "config", *configPath)
	<-halt

	log.Info("shutting down")
	c.Cleanup()
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "stagehand: %s\n", err)
		os.Exit(1)
	}
}
