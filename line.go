// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package pruadc provides the shared building blocks for acquiring samples
// from an AD7172 ADC via a bit bashed SPI bus driven from a coprocessor core.
//
// The root package provides the word addressable memory shared between the
// host and the coprocessor, and the signal lines used to drive the bus.
// The protocol layers are provided by the subpackages:
//
//	mailbox  - the command channel layout within the shared memory
//	spi      - the bit level SPI engine run by the coprocessor
//	dispatch - the coprocessor command dispatch loop
//	driver   - the host side of the command channel
//	ad7172   - the ADC register abstraction
//	pruss    - the coprocessor runtimes
//
// The package reflects only the actual line levels, so an active low line,
// such as chip select, is asserted by driving it Low.
package pruadc

// Level represents the high (true) or low (false) level of a line.
type Level bool

// Level of line, High / Low
const (
	Low  Level = false
	High Level = true
)

// OutputLine is a line driven by the bus master.
type OutputLine interface {
	Write(Level)
}

// InputLine is a line sampled by the bus master.
type InputLine interface {
	Read() Level
}
