// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpiotest_test

import (
	"testing"
	"time"

	"github.com/gpiodrivers/onewire/onewiregpio"
	"github.com/gpiodrivers/onewire/onewiregpio/onewiregpiotest"
	"periph.io/x/conn/v3/gpio"
)

var _ onewiregpio.Port = &onewiregpiotest.Sim{}
var _ onewiregpio.StrongPullupPort = &onewiregpiotest.PullupSim{}

// TestSim_classifiesSlots drives the line by hand, outside the driver, and
// checks the slot decoding.
func TestSim_classifiesSlots(t *testing.T) {
	s := &onewiregpiotest.Sim{Loopback: true}

	// A write-1 slot: short low, drive high, release.
	s.Low()
	s.Sleep(10 * time.Microsecond)
	s.High()
	s.Sleep(55 * time.Microsecond)
	s.Float()

	// A write-0 slot: long low, recovery, release.
	s.Low()
	s.Sleep(65 * time.Microsecond)
	s.High()
	s.Sleep(5 * time.Microsecond)
	s.Float()

	// Two read slots play the bits back in order.
	for i, want := range []gpio.Level{gpio.High, gpio.Low} {
		s.Low()
		s.Sleep(5 * time.Microsecond)
		s.Float()
		s.Sleep(10 * time.Microsecond)
		if got := s.Read(); got != want {
			t.Fatalf("read slot %d: %s, want %s", i, got, want)
		}
		s.Sleep(55 * time.Microsecond)
	}

	if got := s.LowPulses(); len(got) != 4 {
		t.Fatalf("low pulses = %d, want 4", len(got))
	}
}

func TestSim_resetPresence(t *testing.T) {
	s := &onewiregpiotest.Sim{Devices: []*onewiregpiotest.Device{{ROM: [8]byte{0x28}}}}
	s.Low()
	s.Sleep(480 * time.Microsecond)
	s.Float()
	s.Sleep(60 * time.Microsecond)
	if s.Read() != gpio.Low {
		t.Fatal("expected a presence pulse")
	}
	s.Sleep(420 * time.Microsecond)
	if s.Read() != gpio.High {
		t.Fatal("bus should be idle after recovery")
	}
	if s.Resets != 1 {
		t.Fatalf("resets = %d, want 1", s.Resets)
	}
}

func TestSim_noPresenceOnEmptyBus(t *testing.T) {
	s := &onewiregpiotest.Sim{}
	s.Low()
	s.Sleep(480 * time.Microsecond)
	s.Float()
	s.Sleep(60 * time.Microsecond)
	if s.Read() != gpio.High {
		t.Fatal("no device should answer the reset")
	}
}
