// Copyright 2026 The GPIO Drivers Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for 1-Wire bus master drivers.
//
// The onewiregpio package bit-bangs the protocol on a plain GPIO pin; its
// onewiregpiotest subpackage simulates the bus for tests.
package onewire
