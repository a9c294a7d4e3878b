// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package adcsim provides a simulated AD7172 that responds to the SPI lines
// driven by the spi engine.
//
// The simulation is at the line level, so it exercises the full bit
// sequencing of the engine, including the reset sequence and the data ready
// handshake of continuous reads.
package adcsim

import (
	"sync"

	"github.com/golang/glog"
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/ad7172"
)

const (
	// DefaultID is the ID register value of an AD7172-2.
	DefaultID = 0x00d0

	// number of consecutive ones that reset the interface
	resetOnes = 64

	// write enable bit of the communications register, active low
	wenFlag  = 0x80
	readFlag = 0x40
)

type state int

const (
	stateCmd state = iota
	stateWrite
	stateRead
)

// Device is a simulated AD7172.
type Device struct {
	mu     sync.Mutex
	cs     pruadc.Level
	clk    pruadc.Level
	din    pruadc.Level
	dout   pruadc.Level
	hold   bool
	state  state
	reg    ad7172.Register
	shift  uint32
	bits   int
	nbits  int
	ones   int
	drdy   int
	regs   map[ad7172.Register]uint32
	id     uint32
	source func() uint32
	frames [][]byte
	resets int
}

// Option specifies a construction option for the Device.
type Option func(*Device)

// WithCodes sets the conversion results returned by successive data reads.
//
// The codes are returned in order, repeating once exhausted.
func WithCodes(codes ...uint32) Option {
	return func(d *Device) {
		if len(codes) == 0 {
			return
		}
		c := append([]uint32(nil), codes...)
		i := 0
		d.source = func() uint32 {
			v := c[i]
			i = (i + 1) % len(c)
			return v
		}
	}
}

// WithSource sets the function providing the conversion results.
func WithSource(f func() uint32) Option {
	return func(d *Device) {
		d.source = f
	}
}

// WithID sets the value of the ID register.
func WithID(id uint32) Option {
	return func(d *Device) {
		d.id = id
	}
}

// New creates a Device in its power on state.
//
// Unless overridden, every conversion returns mid scale.
func New(options ...Option) *Device {
	d := &Device{
		cs:     pruadc.High,
		clk:    pruadc.High,
		dout:   pruadc.High,
		id:     DefaultID,
		source: func() uint32 { return ad7172.Offset },
	}
	for _, option := range options {
		option(d)
	}
	d.powerOn()
	return d
}

func (d *Device) powerOn() {
	d.regs = map[ad7172.Register]uint32{
		ad7172.Status:    0x80,
		ad7172.ADCMode:   0x2000,
		ad7172.GPIOCon:   0x0800,
		ad7172.Ch0:       0x8001,
		ad7172.Ch1:       0x0001,
		ad7172.Ch2:       0x0001,
		ad7172.Ch3:       0x0001,
		ad7172.SetupCon0: 0x1000,
		ad7172.SetupCon1: 0x1000,
		ad7172.SetupCon2: 0x1000,
		ad7172.SetupCon3: 0x1000,
		ad7172.FiltCon0:  0x0500,
		ad7172.FiltCon1:  0x0500,
		ad7172.FiltCon2:  0x0500,
		ad7172.FiltCon3:  0x0500,
		ad7172.Offset0:   0x800000,
		ad7172.Offset1:   0x800000,
		ad7172.Offset2:   0x800000,
		ad7172.Offset3:   0x800000,
		ad7172.Gain0:     0x555555,
		ad7172.Gain1:     0x555555,
		ad7172.Gain2:     0x555555,
		ad7172.Gain3:     0x555555,
	}
	d.regs[ad7172.ID] = d.id
	d.idle()
}

func (d *Device) idle() {
	d.state = stateCmd
	d.shift = 0
	d.bits = 0
	d.ones = 0
	d.hold = false
}

// CS returns the chip select line, active low.
func (d *Device) CS() pruadc.OutputLine {
	return csLine{d}
}

// Clk returns the serial clock line.
func (d *Device) Clk() pruadc.OutputLine {
	return clkLine{d}
}

// DIn returns the device data input line, driven by the master.
func (d *Device) DIn() pruadc.OutputLine {
	return dinLine{d}
}

// DOut returns the device data output line, sampled by the master.
func (d *Device) DOut() pruadc.InputLine {
	return doutLine{d}
}

// Register returns the current value of a register.
func (d *Device) Register(r ad7172.Register) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[r]
}

// Resets returns the number of interface resets performed.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Transactions returns the bytes shifted into the device, grouped by chip
// select frame.
//
// Bytes clocked while the device is driving a reply are not included.
func (d *Device) Transactions() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	tt := make([][]byte, len(d.frames))
	for i, f := range d.frames {
		tt[i] = append([]byte(nil), f...)
	}
	return tt
}

// ClearTransactions discards the recorded transactions.
func (d *Device) ClearTransactions() {
	d.mu.Lock()
	d.frames = nil
	d.mu.Unlock()
}

func (d *Device) setCS(l pruadc.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == d.cs {
		return
	}
	d.cs = l
	if l == pruadc.Low {
		d.frames = append(d.frames, nil)
		return
	}
	// deselect aborts any partial transaction
	if d.bits != 0 || d.state != stateCmd {
		glog.V(2).Infof("adcsim: frame ended mid transaction, state %d, %d bits", d.state, d.bits)
	}
	d.idle()
	d.dout = pruadc.High
}

func (d *Device) setClk(l pruadc.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == d.clk {
		return
	}
	d.clk = l
	if d.cs == pruadc.High {
		return
	}
	if l == pruadc.Low {
		d.fallingEdge()
		return
	}
	d.risingEdge()
}

func (d *Device) fallingEdge() {
	d.hold = false
	if d.state != stateRead {
		return
	}
	d.dout = d.shift&(1<<uint(d.nbits-d.bits-1)) != 0
}

func (d *Device) risingEdge() {
	if d.state == stateRead {
		d.bits++
		if d.bits == d.nbits {
			if d.reg == ad7172.Data {
				d.drdy = 0
			}
			d.idle()
			// the last bit remains valid until the next falling edge
			d.hold = true
		}
		return
	}
	d.shift = d.shift<<1 | bitOf(d.din)
	d.bits++
	if d.bits%8 == 0 {
		d.record(byte(d.shift))
	}
	if d.din {
		d.ones++
		if d.ones >= resetOnes {
			d.reset()
			return
		}
	} else {
		d.ones = 0
	}
	switch d.state {
	case stateCmd:
		if d.bits == 8 {
			d.command(byte(d.shift))
		}
	case stateWrite:
		if d.bits == d.nbits {
			d.regs[d.reg] = d.shift & mask(d.nbits)
			glog.V(2).Infof("adcsim: %s = 0x%x", d.reg, d.regs[d.reg])
			ones := d.ones
			d.idle()
			d.ones = ones
		}
	}
}

func (d *Device) command(c byte) {
	ones := d.ones
	d.idle()
	d.ones = ones
	if c&wenFlag != 0 {
		return
	}
	r := ad7172.Register(c & 0x3f)
	size := r.Size()
	if size == 0 {
		glog.V(2).Infof("adcsim: ignoring command 0x%02x", c)
		return
	}
	d.reg = r
	d.nbits = size * 8
	if c&readFlag == 0 {
		d.state = stateWrite
		return
	}
	d.state = stateRead
	d.ones = 0
	if r == ad7172.Data {
		d.shift = d.source() & mask(d.nbits)
	} else {
		d.shift = d.regs[r] & mask(d.nbits)
	}
}

func (d *Device) reset() {
	d.resets++
	glog.V(1).Info("adcsim: reset")
	d.powerOn()
}

func (d *Device) record(b byte) {
	if n := len(d.frames); n > 0 {
		d.frames[n-1] = append(d.frames[n-1], b)
	}
}

func (d *Device) readDOut() pruadc.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cs == pruadc.High {
		return pruadc.High
	}
	if d.state == stateRead {
		return d.dout
	}
	if d.hold {
		d.hold = false
		return d.dout
	}
	// data ready handshake, high for one poll then low until read
	if d.drdy == 0 {
		d.drdy = 1
		return pruadc.High
	}
	return pruadc.Low
}

func bitOf(l pruadc.Level) uint32 {
	if l {
		return 1
	}
	return 0
}

func mask(nbits int) uint32 {
	if nbits >= 32 {
		return 0xffffffff
	}
	return 1<<uint(nbits) - 1
}

type csLine struct{ d *Device }

func (l csLine) Write(v pruadc.Level) { l.d.setCS(v) }

type clkLine struct{ d *Device }

func (l clkLine) Write(v pruadc.Level) { l.d.setClk(v) }

type dinLine struct{ d *Device }

func (l dinLine) Write(v pruadc.Level) {
	l.d.mu.Lock()
	l.d.din = v
	l.d.mu.Unlock()
}

type doutLine struct{ d *Device }

func (l doutLine) Read() pruadc.Level { return l.d.readDOut() }
