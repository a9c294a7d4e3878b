// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package pruadc

import (
	"github.com/pkg/errors"
)

// Pin is a single BCM2835 GPIO pin within a mapped GPIO register block.
//
// Pins allow the in-process core to bit bash the SPI bus from a Raspberry Pi
// rather than from a PRU.
type Pin struct {
	mem *Mem
	// Immutable fields
	pin      int
	fsel     int
	levelReg int
	clearReg int
	setReg   int
	mask     uint32
	// Mutable fields
	shadow Level
}

// Mode defines the IO mode of a Pin.
type Mode int

// Pin Mode, a pin can be set in Input or Output mode
const (
	Input Mode = iota
	Output
)

const (
	// MaxGPIOPin is the number of pins addressable by NewPin.
	MaxGPIOPin = 54

	modeMask uint32 = 7 // pin mode is 3 bits wide
)

// NewPin creates a new pin object within the GPIO register block.
// The pin number provided is the BCM GPIO number.
func NewPin(mem *Mem, pin int) (*Pin, error) {
	if pin < 0 || pin >= MaxGPIOPin {
		return nil, errors.Errorf("unknown pin %d", pin)
	}
	bank := pin / 32
	p := &Pin{
		mem: mem,
		pin: pin,
		// Pin fsel register, 0 - 5 depending on pin
		fsel: pin / 10,
		mask: uint32(1 << uint(pin&0x1f)),
		// Input level register offset (13 / 14 depending on bank)
		levelReg: 13 + bank,
		// Clear register, 10 / 11 depending on bank
		clearReg: 10 + bank,
		// Set register, 7 / 8 depending on bank
		setReg: 7 + bank,
	}
	if p.levelReg >= mem.Len() {
		return nil, errors.Wrapf(ErrOutOfRange, "pin %d", pin)
	}
	if mem.Load(p.levelReg)&p.mask != 0 {
		p.shadow = High
	}
	return p, nil
}

// Pin returns the BCM number of the pin.
func (p *Pin) Pin() int {
	return p.pin
}

// Input sets pin as Input.
func (p *Pin) Input() {
	p.SetMode(Input)
}

// Output sets pin as Output.
func (p *Pin) Output() {
	p.SetMode(Output)
}

// Mode returns the mode of the pin in the Function Select register.
func (p *Pin) Mode() Mode {
	modeShift := uint(p.pin%10) * 3
	return Mode(p.mem.Load(p.fsel) >> modeShift & modeMask)
}

// SetMode sets the pin Mode.
func (p *Pin) SetMode(mode Mode) {
	modeShift := uint(p.pin%10) * 3
	p.mem.mu.Lock()
	defer p.mem.mu.Unlock()
	v := p.mem.Load(p.fsel)
	p.mem.Store(p.fsel, v&^(modeMask<<modeShift)|uint32(mode)<<modeShift)
}

// Read returns the pin level.
func (p *Pin) Read() (level Level) {
	if p.mem.Load(p.levelReg)&p.mask != 0 {
		level = High
	}
	p.shadow = level
	return
}

// Write sets the pin level.
func (p *Pin) Write(level Level) {
	if level == Low {
		p.mem.Store(p.clearReg, p.mask)
	} else {
		p.mem.Store(p.setReg, p.mask)
	}
	p.shadow = level
}

// Shadow returns the value of the last write to an output pin or the last
// read on an input pin.
func (p *Pin) Shadow() Level {
	return p.shadow
}
