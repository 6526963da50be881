// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

// CRC-8/Maxim (iButton), polynomial x^8+x^5+x^4+1, reflected 0x8C. Devices
// append it to their identifier and to scratchpad data; folding a buffer
// followed by its own checksum leaves zero.

// crcUpdate folds one byte into the running checksum.
func crcUpdate(crc, data byte) byte {
	crc ^= data
	for i := 0; i < 8; i++ {
		if crc&0x01 != 0 {
			crc = crc>>1 ^ 0x8C
		} else {
			crc >>= 1
		}
	}
	return crc
}

// CRC8 returns the CRC-8/Maxim checksum of data.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcUpdate(crc, b)
	}
	return crc
}

// CheckCRC reports whether crc is the valid checksum of data: folding the
// data and then the checksum itself must leave zero. An identifier read
// off the bus is valid iff CheckCRC(id[:7], id[7]).
func CheckCRC(data []byte, crc byte) bool {
	return crcUpdate(CRC8(data), crc) == 0
}
