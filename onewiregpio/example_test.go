// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio_test

import (
	"fmt"
	"log"

	"github.com/gpiodrivers/onewire/onewiregpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The bus data line, with its 4.7kΩ pull-up to 3.3V, on GPIO4.
	pin := gpioreg.ByName("GPIO4")
	if pin == nil {
		log.Fatal("failed to find GPIO4")
	}
	bus, err := onewiregpio.NewPin(pin, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Halt()

	n := bus.DiscoverDevices(func(rom onewiregpio.ROM) {
		fmt.Printf("%s (family %#02x)\n", rom, rom.Family())
	}, false)
	fmt.Printf("%d devices found\n", n)
}

func ExampleDev_Tx() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	pin := gpioreg.ByName("GPIO4")
	if pin == nil {
		log.Fatal("failed to find GPIO4")
	}
	bus, err := onewiregpio.NewPin(pin, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Halt()

	// Skip ROM, then read the scratchpad of the lone device on the bus.
	var spad [9]byte
	if err := bus.Tx([]byte{0xcc, 0xbe}, spad[:], onewire.WeakPullup); err != nil {
		log.Fatal(err)
	}
	if !onewiregpio.CheckCRC(spad[:8], spad[8]) {
		log.Fatal("scratchpad CRC mismatch")
	}
	fmt.Printf("scratchpad: %x\n", spad)
}
