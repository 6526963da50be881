// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpiotest simulates the data line of a 1-Wire bus so the
// bit-bang master can be exercised without hardware.
//
// Sim implements the driver's Port interface with a virtual microsecond
// clock: the master's own Sleep calls advance time, drive transitions are
// classified into reset pulses and write or read timeslots by their
// measured low-phase width, and attached Device state machines answer read
// slots the way 1-Wire slaves do, wired-AND onto the line.
package onewiregpiotest

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Pulse is one pulse the master drove onto the line.
type Pulse struct {
	Level gpio.Level    // level the master drove
	Width time.Duration // how long it held it
}

type driveState int

const (
	driveFloat driveState = iota
	driveLow
	driveHigh
)

// Sim emulates the data line of a 1-Wire bus with a set of slave devices
// attached.
type Sim struct {
	// Devices are the slaves attached to the bus.
	Devices []*Device

	// NoPullup simulates a missing pull-up resistor: the released line
	// never reaches its idle high level, so a reset can never be issued.
	NoPullup bool

	// Loopback queues every bit the master writes and plays it back on
	// read slots, oldest first. Useful for byte round-trip tests on an
	// otherwise empty bus. A loopback bus also answers the presence
	// pulse.
	Loopback bool

	// ResetLimit, when positive, makes all devices stop answering after
	// that many reset pulses, as if they vanished from the bus.
	ResetLimit int

	// Pulses records every pulse the master drove, in order.
	Pulses []Pulse

	// Resets counts the reset pulses seen.
	Resets int

	now           time.Duration
	drive         driveState
	lowSince      time.Duration
	highSince     time.Duration
	readSlot      bool
	presenceUntil time.Duration
	critical      int
	loopq         []byte
}

func (s *Sim) String() string {
	return "sim"
}

func (s *Sim) Err() error {
	return nil
}

// Now returns the virtual clock.
func (s *Sim) Now() time.Duration {
	return s.now
}

// Critical reports whether the master currently holds the critical
// section.
func (s *Sim) Critical() bool {
	return s.critical > 0
}

// LineDriven reports whether the master is actively driving the line, and
// at which level. A released line reads as the pull-up level.
func (s *Sim) LineDriven() (bool, gpio.Level) {
	switch s.drive {
	case driveLow:
		return true, gpio.Low
	case driveHigh:
		return true, gpio.High
	}
	return false, gpio.High
}

// LowPulses returns the widths of the low pulses the master drove, in
// order.
func (s *Sim) LowPulses() []time.Duration {
	var widths []time.Duration
	for _, p := range s.Pulses {
		if p.Level == gpio.Low {
			widths = append(widths, p.Width)
		}
	}
	return widths
}

func (s *Sim) Suspend() {
	s.critical++
}

func (s *Sim) Resume() {
	s.critical--
}

func (s *Sim) Sleep(d time.Duration) {
	s.now += d
}

func (s *Sim) Low() {
	switch s.drive {
	case driveLow:
		return
	case driveHigh:
		s.endHigh()
	}
	s.drive = driveLow
	s.lowSince = s.now
}

func (s *Sim) High() {
	switch s.drive {
	case driveHigh:
		return
	case driveLow:
		s.endLow(driveHigh)
	}
	s.drive = driveHigh
	s.highSince = s.now
}

func (s *Sim) Float() {
	switch s.drive {
	case driveLow:
		s.endLow(driveFloat)
	case driveHigh:
		s.endHigh()
	}
	s.drive = driveFloat
}

func (s *Sim) Read() gpio.Level {
	switch s.drive {
	case driveLow:
		return gpio.Low
	case driveHigh:
		return gpio.High
	}
	if s.NoPullup {
		return gpio.Low
	}
	if s.now < s.presenceUntil {
		// A device is stretching its presence pulse.
		return gpio.Low
	}
	if s.readSlot {
		s.readSlot = false
		bit := byte(1)
		if s.Loopback && len(s.loopq) > 0 {
			bit = s.loopq[0]
			s.loopq = s.loopq[1:]
		}
		for _, dev := range s.Devices {
			bit &= dev.readSlot()
		}
		if bit == 0 {
			return gpio.Low
		}
	}
	return gpio.High
}

func (s *Sim) endHigh() {
	if width := s.now - s.highSince; width > 0 {
		s.Pulses = append(s.Pulses, Pulse{Level: gpio.High, Width: width})
	}
}

// endLow classifies the low pulse that just ended by its width and by what
// the master did next: a drive high after a short low is a write-1 slot, a
// release is the start of a read slot.
func (s *Sim) endLow(next driveState) {
	width := s.now - s.lowSince
	s.Pulses = append(s.Pulses, Pulse{Level: gpio.Low, Width: width})
	switch {
	case width >= 480*time.Microsecond:
		s.reset()
	case width > 15*time.Microsecond:
		s.masterBit(0)
	case next == driveHigh:
		s.masterBit(1)
	default:
		s.readSlot = true
	}
}

func (s *Sim) reset() {
	s.Resets++
	s.readSlot = false
	s.presenceUntil = 0
	if s.ResetLimit > 0 && s.Resets > s.ResetLimit {
		for _, dev := range s.Devices {
			dev.state = stateGone
		}
		return
	}
	for _, dev := range s.Devices {
		dev.reset()
	}
	if len(s.Devices) > 0 || s.Loopback {
		// Presence pulses start 15–60µs after the release and last
		// 60–240µs; asserting until 75µs past the release covers the
		// master's sample point.
		s.presenceUntil = s.now + 75*time.Microsecond
	}
	if s.Loopback {
		s.loopq = s.loopq[:0]
	}
}

func (s *Sim) masterBit(bit byte) {
	if s.Loopback {
		s.loopq = append(s.loopq, bit)
	}
	for _, dev := range s.Devices {
		dev.masterBit(bit)
	}
}

// PullupSim is a Sim whose port can also switch an external strong
// pull-up FET, like a port built with Opts.PullupPin.
type PullupSim struct {
	Sim

	// FETOn mirrors the state of the simulated FET gate.
	FETOn bool
}

func (s *PullupSim) PullupOn() {
	s.FETOn = true
}

func (s *PullupSim) PullupOff() {
	s.FETOn = false
}

func (s *PullupSim) Read() gpio.Level {
	if s.FETOn {
		return gpio.High
	}
	return s.Sim.Read()
}

// Device is a simulated 1-Wire slave.
type Device struct {
	// ROM is the 64-bit identifier the device answers the search with. It
	// is not required to carry a valid checksum; an invalid one stands in
	// for a corrupted device.
	ROM [8]byte

	// Alarmed makes the device take part in alarm searches.
	Alarmed bool

	state int
	cmd   byte
	pos   int
	phase int
}

const (
	stateIdle = iota // waiting for a reset
	stateCommand     // assembling the ROM command byte
	stateSearch      // answering search slot triples
	stateMatch       // comparing a Match ROM identifier
	stateReadROM     // transmitting the identifier
	stateSelected    // addressed; a function command would follow
	stateDropped     // out of the transaction until the next reset
	stateGone        // vanished from the bus entirely
)

const (
	phaseBit = iota
	phaseComplement
	phaseDirection
)

// Selected reports whether the device is addressed for a following
// function command.
func (d *Device) Selected() bool {
	return d.state == stateSelected
}

func (d *Device) romBit(i int) byte {
	return d.ROM[i/8] >> (i % 8) & 1
}

func (d *Device) reset() {
	if d.state == stateGone {
		return
	}
	d.state = stateCommand
	d.cmd = 0
	d.pos = 0
	d.phase = phaseBit
}

// masterBit feeds the device one bit written by the master.
func (d *Device) masterBit(bit byte) {
	switch d.state {
	case stateCommand:
		d.cmd |= bit << d.pos
		if d.pos++; d.pos == 8 {
			d.dispatch(d.cmd)
		}
	case stateSearch:
		if d.phase != phaseDirection {
			return
		}
		if bit != d.romBit(d.pos) {
			d.state = stateDropped
			return
		}
		d.phase = phaseBit
		if d.pos++; d.pos == 64 {
			d.state = stateSelected
		}
	case stateMatch:
		if bit != d.romBit(d.pos) {
			d.state = stateDropped
			return
		}
		if d.pos++; d.pos == 64 {
			d.state = stateSelected
		}
	}
}

func (d *Device) dispatch(cmd byte) {
	d.pos = 0
	d.phase = phaseBit
	switch cmd {
	case 0xF0: // Search ROM
		d.state = stateSearch
	case 0xEC: // Alarm Search
		if d.Alarmed {
			d.state = stateSearch
		} else {
			d.state = stateDropped
		}
	case 0x55, 0x69: // Match ROM; the overdrive variant runs at standard speed here
		d.state = stateMatch
	case 0x33: // Read ROM
		d.state = stateReadROM
	case 0xCC, 0x3C: // Skip ROM
		d.state = stateSelected
	default:
		d.state = stateDropped
	}
}

// readSlot returns the bit the device transmits in a read timeslot; a 1
// leaves the line to the pull-up.
func (d *Device) readSlot() byte {
	switch d.state {
	case stateSearch:
		switch d.phase {
		case phaseBit:
			d.phase = phaseComplement
			return d.romBit(d.pos)
		case phaseComplement:
			d.phase = phaseDirection
			return d.romBit(d.pos) ^ 1
		}
	case stateReadROM:
		if d.pos < 64 {
			bit := d.romBit(d.pos)
			d.pos++
			return bit
		}
	}
	return 1
}
