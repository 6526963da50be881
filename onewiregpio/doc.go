// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio drives a 1-Wire bus by bit-banging the protocol on a
// single GPIO pin, with no dedicated bus controller hardware.
//
// The master implements onewire.Bus and onewire.BusSearcher, so 1-Wire
// device drivers written against periph.io run on it unchanged. On top of
// the byte-level transactions it exposes the raw protocol surface: reset
// and presence detection, ROM selection commands, strong pull-up control
// for parasitically powered devices, and a callback-based bus enumeration
// that discovers every 64-bit identifier on a shared bus.
//
// Timeslots are in the 60–70µs range and the master paces them itself, so
// the driver busy-waits short delays and pins the goroutine to its OS
// thread during timing-critical sequences. On a hosted kernel this is a
// best effort; a bus with generous pull-up margins tolerates the jitter,
// and platforms with real interrupt control can substitute their own Port
// implementation.
//
// Timing follows Maxim application note 126, "1-Wire Communication Through
// Software".
package onewiregpio
