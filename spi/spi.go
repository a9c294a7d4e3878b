// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package spi provides the bit bashed SPI engine run by the coprocessor.
//
// The engine drives four lines, chip select (active low), clock, data-out
// and data-in. Data-out is set while the clock is low and is latched by the
// device on the rising edge. Data-in is sampled on the rising edge. Bytes
// are transferred MSB first.
package spi

import (
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc"
)

const (
	// ResetBytes is the number of bytes of ones clocked to reset the device.
	//
	// The device requires at least 64 clocks with data-out high.
	ResetBytes = 9

	// MaxWordBytes is the widest rx word the engine can assemble.
	MaxWordBytes = 4
)

// Engine drives the SPI lines to perform transactions.
//
// The engine buffers nothing beyond the current byte. It is not safe for
// concurrent use, as it is owned by the coprocessor dispatch loop.
type Engine struct {
	Cs    pruadc.OutputLine
	Sclk  pruadc.OutputLine
	Mosi  pruadc.OutputLine
	Miso  pruadc.InputLine
	Timer Timer
}

// Option specifies a construction option for the Engine.
type Option func(*Engine)

// WithTimer sets the Timer providing the bit delays.
func WithTimer(t Timer) Option {
	return func(e *Engine) {
		e.Timer = t
	}
}

// New creates an Engine and places the lines in their idle state.
//
// The default Timer is a SpinTimer with a nominal cycle count.
func New(cs, sclk, mosi pruadc.OutputLine, miso pruadc.InputLine, options ...Option) *Engine {
	e := &Engine{
		Cs:    cs,
		Sclk:  sclk,
		Mosi:  mosi,
		Miso:  miso,
		Timer: SpinTimer{Cycles: 20},
	}
	for _, option := range options {
		option(e)
	}
	// Always start with CS, CLK high and MOSI low.
	e.Cs.Write(pruadc.High)
	e.Sclk.Write(pruadc.High)
	e.Mosi.Write(pruadc.Low)
	return e
}

// Reset forces the device into a known state by clocking ResetBytes of ones
// with chip select asserted.
//
// No response is read.
func (e *Engine) Reset() {
	e.Mosi.Write(pruadc.High)
	e.Cs.Write(pruadc.Low)
	e.Timer.Wait(Settle)
	for i := 0; i < ResetBytes; i++ {
		for j := 0; j < 8; j++ {
			e.Sclk.Write(pruadc.Low)
			e.Mosi.Write(pruadc.High)
			e.Timer.Wait(Settle)
			e.Sclk.Write(pruadc.High)
			e.Timer.Wait(Latch)
		}
		e.Timer.Wait(ByteGap)
	}
	e.Cs.Write(pruadc.High)
	e.Mosi.Write(pruadc.Low)
}

// Write clocks out the bytes within a single chip select frame.
func (e *Engine) Write(tx []byte) {
	e.Cs.Write(pruadc.Low)
	e.Timer.Wait(Settle)
	for _, b := range tx {
		e.clockOut(b)
	}
	e.Cs.Write(pruadc.High)
	e.Mosi.Write(pruadc.Low)
}

// WriteReadSingle clocks out the tx bytes and then, without releasing chip
// select, clocks in n bytes which are returned as a single word, MSB first.
func (e *Engine) WriteReadSingle(tx []byte, n int) (uint32, error) {
	if err := checkWordBytes(n); err != nil {
		return 0, err
	}
	e.Mosi.Write(pruadc.High)
	e.Cs.Write(pruadc.Low)
	e.Sclk.Write(pruadc.Low)
	for _, b := range tx {
		e.clockOut(b)
	}
	// hold data-out low while clocking in the reply
	e.Mosi.Write(pruadc.Low)
	w := e.clockInWord(n)
	e.Cs.Write(pruadc.High)
	return w, nil
}

// WriteReadContinuous performs a burst of samples within a single chip
// select frame.
//
// For each sample it waits for the data ready handshake, data-in going high
// then low, then clocks out the tx bytes and clocks in n bytes as a word.
func (e *Engine) WriteReadContinuous(tx []byte, n, samples int) ([]uint32, error) {
	if err := checkWordBytes(n); err != nil {
		return nil, err
	}
	rx := make([]uint32, samples)
	e.Mosi.Write(pruadc.High)
	e.Cs.Write(pruadc.Low)
	for i := range rx {
		e.waitMiso(pruadc.High)
		e.waitMiso(pruadc.Low)
		for _, b := range tx {
			e.clockOut(b)
		}
		// hold data-out high while clocking in the reply
		e.Mosi.Write(pruadc.High)
		rx[i] = e.clockInWord(n)
		e.Timer.Wait(SampleGap)
	}
	e.Cs.Write(pruadc.High)
	e.Mosi.Write(pruadc.Low)
	return rx, nil
}

// clockOut clocks out a byte on Mosi, MSB first.
// Assumes the clock may be at either level and ends with the clock high.
func (e *Engine) clockOut(b byte) {
	for j := 7; j >= 0; j-- {
		e.Sclk.Write(pruadc.Low)
		e.Mosi.Write(b&(1<<uint(j)) != 0)
		e.Timer.Wait(Settle)
		e.Sclk.Write(pruadc.High) // device reads on the rising edge
		e.Timer.Wait(Latch)
	}
	e.Timer.Wait(ByteGap)
}

// clockIn clocks in a byte from Miso, MSB first.
// Assumes the clock may be at either level and ends with the clock high.
func (e *Engine) clockIn() byte {
	var d byte
	for j := 0; j < 8; j++ {
		e.Sclk.Write(pruadc.Low) // device writes on the falling edge
		e.Timer.Wait(Settle)
		e.Sclk.Write(pruadc.High)
		d = d << 1
		if e.Miso.Read() {
			d = d | 0x01
		}
		e.Timer.Wait(Latch)
	}
	e.Timer.Wait(ByteGap)
	return d
}

func (e *Engine) clockInWord(n int) uint32 {
	var w uint32
	for i := 0; i < n; i++ {
		w = w<<8 | uint32(e.clockIn())
	}
	return w
}

func (e *Engine) waitMiso(l pruadc.Level) {
	for e.Miso.Read() != l {
	}
}

func checkWordBytes(n int) error {
	if n < 1 || n > MaxWordBytes {
		return errors.Wrapf(ErrWordSize, "%d bytes", n)
	}
	return nil
}

// ErrWordSize indicates a request for rx words wider than MaxWordBytes.
var ErrWordSize = errors.New("invalid word size")
