// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// ResetRetries bounds how many 5µs polls Reset spends waiting for the
	// line to reach its idle high level before the reset pulse is issued.
	// The default budget corresponds to roughly one millisecond; a bus
	// that cannot reach idle within it (missing pull-up, short circuit)
	// fails the reset.
	ResetRetries int

	// PullupPin switches an external FET that holds the line high with
	// low impedance after a strong-pullup write. Leave nil when the bus
	// has no such hardware; strong-pullup writes then fall back to driving
	// the data pin itself high.
	PullupPin gpio.PinOut
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{ResetRetries: 200}

// New returns a bus master that bit-bangs the 1-Wire protocol through the
// given port.
//
// The line is settled to its idle state. If the port implements
// StrongPullupPort, strong-pullup writes engage the FET instead of driving
// the data line high.
func New(p Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	retries := opts.ResetRetries
	if retries == 0 {
		retries = DefaultOpts.ResetRetries
	}
	if retries < 0 {
		return nil, errors.New("onewiregpio: invalid ResetRetries")
	}
	d := &Dev{port: p, resetRetries: retries}
	if fet, ok := p.(StrongPullupPort); ok {
		d.fet = fet
	}
	p.High()
	p.Float()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewPin returns a bus master on the given GPIO pin.
//
// The pin needs an external pull-up resistor (typically 4.7kΩ) to the bus
// supply. opts.PullupPin, if set, must drive the gate of an external
// strong pull-up FET; it is initialized to off.
func NewPin(pin gpio.PinIO, opts *Opts) (*Dev, error) {
	if pin == nil {
		return nil, errors.New("onewiregpio: data pin is required")
	}
	var p Port
	if opts != nil && opts.PullupPin != nil {
		fp := &fetPort{pinPort{pin: pin}, opts.PullupPin}
		fp.PullupOff()
		p = fp
	} else {
		p = &pinPort{pin: pin}
	}
	return New(p, opts)
}

// Dev is a 1-Wire bus master bit-banged on a single GPIO pin. It
// implements onewire.Bus and onewire.BusSearcher.
//
// The bus is one shared wire with no arbitration layer in this driver. The
// compound operations (Tx, Search, DiscoverDevices) serialize against each
// other, but the low-level primitives are not locked: they must be called
// from a single context, and every multi-step sequence (reset, command,
// payload) has to run to completion before another operation starts.
type Dev struct {
	mu           sync.Mutex       // lock for the bus while a transaction is in progress
	port         Port             // the data line
	fet          StrongPullupPort // non-nil when the port can switch a strong pull-up FET
	resetRetries int
	held         bool // strong pullup engaged, critical section still open

	// Enumeration state, alive during one DiscoverDevices call.
	rom      ROM
	discover DiscoverFunc
	alarm    bool
	found    int
}

func (d *Dev) String() string {
	return "OneWireGPIO{" + d.port.String() + "}"
}

// Halt implements conn.Resource. It releases a held strong pullup and
// leaves the line floating.
func (d *Dev) Halt() error {
	if d.held {
		d.ReleasePullup()
	} else {
		d.port.Float()
	}
	return d.port.Err()
}

// Standard-speed timing. A timeslot is 60–70µs; the low-phase split
// between a 1 and a 0 is what the devices decode.
const (
	tIdlePoll       = 5 * time.Microsecond   // granularity of the wait for idle before a reset
	tResetLow       = 480 * time.Microsecond // minimum reset pulse width
	tPresenceSample = 60 * time.Microsecond  // release-to-sample distance for the presence pulse
	tResetRecovery  = 420 * time.Microsecond // post-presence bus and parasitic capacitor recharge
	tWrite1Low      = 10 * time.Microsecond  // write-1 low phase, must stay below 15µs
	tWrite1High     = 55 * time.Microsecond  // write-1 remainder of the slot
	tWrite0Low      = 65 * time.Microsecond  // write-0 low phase covers the whole slot
	tWrite0Recovery = 5 * time.Microsecond   // charging interval for parasitic devices
	tReadInit       = 5 * time.Microsecond   // low pulse initiating a read slot
	tReadSample     = 10 * time.Microsecond  // release-to-sample distance
	tReadRemainder  = 55 * time.Microsecond  // rest of the slot, paced with preemption enabled
)

// Reset performs a reset pulse and detects whether any device is present.
//
// Before the pulse the line has to be at its idle high level; if it does
// not get there within the configured retry budget the bus is faulted
// (missing pull-up, short circuit) and Reset returns false without issuing
// a pulse. Otherwise the line is held low for 480µs, released, and sampled
// 60µs later: a device asserting its presence pulse reads back low. A
// further 420µs lets the bus and parasitic capacitors recover.
func (d *Dev) Reset() bool {
	p := d.port
	p.Suspend()
	p.Float()
	for retry := d.resetRetries; ; {
		if retry--; retry == 0 {
			p.Resume()
			return false
		}
		p.Sleep(tIdlePoll)
		if p.Read() == gpio.High {
			break
		}
	}

	// The 480µs wait has loose tolerance, so preemption stays enabled
	// during it; anything delaying the release by more than ~160µs would
	// still be a problem.
	p.Low()
	p.Resume()
	p.Sleep(tResetLow)

	p.Suspend()
	p.Float()
	p.Sleep(tPresenceSample)
	present := p.Read() == gpio.Low
	p.Resume()
	p.Sleep(tResetRecovery)
	return present
}

// writeBit transmits one bit in a single timeslot. A 1 pulls the line low
// for 10µs and releases it for the remaining 55µs; a 0 holds it low for
// the full 65µs slot and leaves a 5µs charging interval for parasitic
// devices. The whole slot is paced inside the primitive, so consecutive
// calls compose without the caller tracking bus time.
//
// With hold set the critical section stays open after the slot, so a
// following strong-pullup drive is glitch-free. The caller must close the
// critical section itself.
func (d *Dev) writeBit(bit byte, hold bool) {
	p := d.port
	p.Suspend()
	if bit != 0 {
		p.Low()
		p.Sleep(tWrite1Low)
		p.High()
		p.Sleep(tWrite1High)
	} else {
		p.Low()
		p.Sleep(tWrite0Low)
		p.High()
		p.Sleep(tWrite0Recovery)
	}
	p.Float()
	if !hold {
		p.Resume()
	}
}

// readBit samples one bit: a 5µs low initiates the slot, the line is
// released, and 10µs later the level is whatever the addressed device
// drives. The remaining 55µs of the slot are slept out with preemption
// re-enabled; timing after the sample is not critical.
func (d *Dev) readBit() byte {
	p := d.port
	p.Suspend()
	p.Low()
	p.Sleep(tReadInit)
	p.Float()
	p.Sleep(tReadSample)
	var bit byte
	if p.Read() == gpio.High {
		bit = 1
	}
	p.Resume()
	p.Sleep(tReadRemainder)
	return bit
}

// WriteByte transmits one byte, least significant bit first.
//
// With pullup set the line is left actively driven high after the last
// timeslot, through the strong pull-up FET when the port has one and by
// the data pin itself otherwise, and the critical section stays open.
// ReleasePullup must be called before any further bus activity: a device
// pulling the driven line low would be damaged by the contention.
func (d *Dev) WriteByte(b byte, pullup bool) {
	for mask := byte(0x01); mask != 0; mask <<= 1 {
		d.writeBit(b&mask, pullup && mask == 0x80)
	}
	if !pullup {
		return
	}
	if d.fet != nil {
		d.fet.PullupOn()
	} else {
		d.port.High()
	}
	d.held = true
}

// WriteBytes transmits w in order, with no batching and no mid-transfer
// error shortcut. pullup applies to the final byte, with the same release
// obligation as WriteByte.
func (d *Dev) WriteBytes(w []byte, pullup bool) {
	for i, b := range w {
		d.WriteByte(b, pullup && i == len(w)-1)
	}
}

// ReadByte receives one byte, least significant bit first.
func (d *Dev) ReadByte() byte {
	var b byte
	for mask := byte(0x01); mask != 0; mask <<= 1 {
		if d.readBit() != 0 {
			b |= mask
		}
	}
	return b
}

// ReadBytes fills r one byte at a time. A bus fault does not surface here:
// a vanished device reads as all ones and is caught by higher-level CRC or
// reset checks.
func (d *Dev) ReadBytes(r []byte) {
	for i := range r {
		r[i] = d.ReadByte()
	}
}

// ReleasePullup ends the strong pull-up period after a write that
// requested it: the FET (or the plain high drive) is switched off, the
// line returns to the pull-up resistor and preemption is re-enabled. This
// is the only path that guarantees the critical section is closed after a
// held write.
func (d *Dev) ReleasePullup() {
	if d.fet != nil {
		d.fet.PullupOff()
	}
	d.port.Float()
	d.port.Resume()
	d.held = false
}

// 1-Wire ROM commands.
const (
	cmdReadROM           = 0x33
	cmdMatchROM          = 0x55
	cmdSkipROM           = 0xCC
	cmdSkipROMOverdrive  = 0x3C
	cmdMatchROMOverdrive = 0x69
	cmdSearchROM         = 0xF0
	cmdAlarmSearch       = 0xEC
)

// ReadROM issues the Read ROM command (0x33), valid only when exactly one
// device sits on the bus; the caller reads the 8 identifier bytes next.
//
// The command is sent regardless of the reset outcome; the presence result
// is returned for callers that want fault detection.
func (d *Dev) ReadROM() bool {
	present := d.Reset()
	d.WriteByte(cmdReadROM, false)
	return present
}

// MatchROM addresses the device with the given identifier (0x55); every
// other device ignores the bus until the next reset.
func (d *Dev) MatchROM(rom ROM) bool {
	present := d.Reset()
	d.WriteByte(cmdMatchROM, false)
	d.WriteBytes(rom[:], false)
	return present
}

// SkipROM broadcasts (0xCC): all devices on the bus take part in the
// following transfer.
func (d *Dev) SkipROM() bool {
	present := d.Reset()
	d.WriteByte(cmdSkipROM, false)
	return present
}

// SkipROMOverdrive issues the overdrive Skip ROM command (0x3C).
//
// Overdrive timeslot timing is not implemented: a device switched into
// overdrive by this command will not understand the standard-speed slots
// that follow until the next reset.
func (d *Dev) SkipROMOverdrive() bool {
	present := d.Reset()
	d.WriteByte(cmdSkipROMOverdrive, false)
	return present
}

// MatchROMOverdrive issues the overdrive Match ROM command (0x69) followed
// by the identifier. Same caveat as SkipROMOverdrive.
func (d *Dev) MatchROMOverdrive(rom ROM) bool {
	present := d.Reset()
	d.WriteByte(cmdMatchROMOverdrive, false)
	d.WriteBytes(rom[:], false)
	return present
}

// Tx performs a bus transaction: reset, write w, read r, ending with the
// line either released or, when power is onewire.StrongPullup and the
// transaction ends on a write, held driven high to power parasitic
// devices.
//
// A held pullup is released at the start of the next transaction, which is
// what makes TxPower-style consumers (temperature conversions, EEPROM
// writes) work without extra calls.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.held {
		d.ReleasePullup()
	}
	if !d.Reset() {
		if err := d.port.Err(); err != nil {
			return err
		}
		return busError("onewiregpio: no device present")
	}
	strong := power == onewire.StrongPullup && len(r) == 0
	for i, b := range w {
		d.WriteByte(b, strong && i == len(w)-1)
	}
	d.ReadBytes(r)
	return d.port.Err()
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
