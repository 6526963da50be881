// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"runtime"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Port is the narrow set of hardware capabilities the bus master needs:
// sampling and open-drain style control of the data line, microsecond
// pacing, and a critical section that keeps a timeslot from being
// preempted.
//
// Ports for real hardware wrap a gpio.PinIO (see NewPin). The
// onewiregpiotest package provides a simulated implementation.
//
// Port methods do not return errors; a timeslot is far too short to act on
// one mid-sequence. Implementations latch the first hardware error instead
// and report it through Err.
type Port interface {
	String() string
	// Read samples the current level of the data line.
	Read() gpio.Level
	// Low drives the data line low.
	Low()
	// High drives the data line high.
	High()
	// Float releases the data line to the bus pull-up resistor.
	Float()
	// Sleep pauses the master for the given duration with microsecond
	// precision.
	Sleep(d time.Duration)
	// Suspend enters the critical section. The driver assumes a simple
	// enable/disable pair, not reentrant counting.
	Suspend()
	// Resume leaves the critical section.
	Resume()
	// Err returns the first latched hardware error, if any.
	Err() error
}

// StrongPullupPort is a Port that can additionally switch an external
// strong pull-up FET holding the line high with low impedance, for
// parasitically powered devices that need more current than the pull-up
// resistor can supply.
type StrongPullupPort interface {
	Port
	// PullupOn switches the FET on.
	PullupOn()
	// PullupOff switches the FET off.
	PullupOff()
}

// pinPort adapts a gpio.PinIO to the Port interface. gpio.PinIO sets mode
// and level in one call, so the driven states map to Out and the released
// state to In; the bus pull-up resistor is external, the internal pull
// stays off.
type pinPort struct {
	pin gpio.PinIO
	err error
}

func (p *pinPort) String() string {
	return p.pin.String()
}

func (p *pinPort) Read() gpio.Level {
	return p.pin.Read()
}

func (p *pinPort) Low() {
	p.track(p.pin.Out(gpio.Low))
}

func (p *pinPort) High() {
	p.track(p.pin.Out(gpio.High))
}

func (p *pinPort) Float() {
	p.track(p.pin.In(gpio.Float, gpio.NoEdge))
}

// Sleep paces the protocol. Slot-level delays are below what the scheduler
// can honor, so short waits spin on the monotonic clock; the long reset
// delays go through time.Sleep to not burn a core.
func (p *pinPort) Sleep(d time.Duration) {
	if d >= 100*time.Microsecond {
		sleep(d)
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}

// Suspend pins the goroutine to its OS thread for the duration of the
// critical section. User space cannot mask interrupts; this keeps at least
// the Go scheduler from migrating or preempting the timeslot.
func (p *pinPort) Suspend() {
	runtime.LockOSThread()
}

func (p *pinPort) Resume() {
	runtime.UnlockOSThread()
}

func (p *pinPort) Err() error {
	return p.err
}

func (p *pinPort) track(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

// fetPort is a pinPort with a second pin switching the strong pull-up FET.
type fetPort struct {
	pinPort
	fet gpio.PinOut
}

func (p *fetPort) PullupOn() {
	p.track(p.fet.Out(gpio.High))
}

func (p *fetPort) PullupOff() {
	p.track(p.fet.Out(gpio.Low))
}

var sleep = time.Sleep

var _ Port = &pinPort{}
var _ StrongPullupPort = &fetPort{}
