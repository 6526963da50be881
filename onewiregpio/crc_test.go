// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import "testing"

func TestCRC8_knownDevice(t *testing.T) {
	// Identifier of a DS18B20 recorded from real hardware.
	rom := []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}
	if got := CRC8(rom); got != 0x74 {
		t.Fatalf("CRC8 = %#02x, want 0x74", got)
	}
	if !CheckCRC(rom, 0x74) {
		t.Fatal("valid identifier rejected")
	}
	if CheckCRC(rom, 0x75) {
		t.Fatal("wrong checksum accepted")
	}
}

func TestCheckCRC_scratchpad(t *testing.T) {
	// DS18B20 scratchpad recorded from real hardware; the ninth byte is
	// the checksum.
	spad := []byte{0xe0, 0x01, 0x00, 0x00, 0x3f, 0xff, 0x10, 0x10, 0x3f}
	if !CheckCRC(spad[:8], spad[8]) {
		t.Fatal("valid scratchpad rejected")
	}
}

func TestCheckCRC_foldsToZero(t *testing.T) {
	seqs := [][]byte{
		{},
		{0x00},
		{0xff},
		{0x10, 0x00, 0x08, 0x1c, 0x84, 0x05, 0x00},
		{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05},
	}
	for _, d := range seqs {
		crc := CRC8(d)
		if !CheckCRC(d, crc) {
			t.Errorf("CheckCRC(%x, %#02x) = false", d, crc)
		}
		full := append(append([]byte(nil), d...), crc)
		if got := CRC8(full); got != 0 {
			t.Errorf("CRC8(%x) = %#02x, want 0", full, got)
		}
	}
}

func TestCheckCRC_singleBitErrors(t *testing.T) {
	rom := ROM{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74}
	if !rom.Valid() {
		t.Fatal("reference identifier is invalid")
	}
	for i := 0; i < 64; i++ {
		mutated := rom
		mutated[i/8] ^= 1 << (i % 8)
		if mutated.Valid() {
			t.Errorf("flipping bit %d went undetected", i)
		}
	}
}
