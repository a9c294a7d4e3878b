// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package ad7172 provides the register abstraction for an AD7172 ADC
// connected via the coprocessor SPI command channel.
package ad7172

import (
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Transport issues SPI transactions to the device.
//
// Fail is invoked for fatal usage errors detected by the ADC. It is expected
// to reset the coprocessor and terminate the process.
type Transport interface {
	SendWrite(tx []byte) error
	SendWriteReadSingle(tx []byte, rxBytes int) (uint32, error)
	SendWriteReadContinuous(tx []byte, rxBytes, samples int) ([]uint32, error)
	SendReset() error
	Fail(err error)
}

const (
	// DefaultVref is the voltage reference of the standard board.
	DefaultVref = 4.096

	// MaxBurst is the largest number of samples that can be read by a single
	// ReadMultiple.
	MaxBurst = 1024

	// Offset is the code corresponding to zero volts.
	Offset = 0x800000

	// The device requires at least 0.5ms after a reset before any command.
	defaultResetSettle = time.Millisecond
	defaultSettle      = 5 * time.Microsecond

	dataBytes = 3
	idBytes   = 2

	twoPow23 = 8388608.0
)

// ADC reads voltages from a connected AD7172.
type ADC struct {
	mu sync.Mutex
	t  Transport
	// voltage reference
	vref float64
	// time to allow between configuration writes
	tset time.Duration
	// time to allow after a reset
	treset  time.Duration
	release io.Closer
	closed  bool
}

// Option specifies a construction option for the ADC.
type Option func(*ADC)

// WithVref sets the reference voltage used in converting codes to volts.
func WithVref(vref float64) Option {
	return func(a *ADC) {
		a.vref = vref
	}
}

// WithSettle sets the delay between configuration writes.
func WithSettle(d time.Duration) Option {
	return func(a *ADC) {
		a.tset = d
	}
}

// WithResetSettle sets the delay after a reset.
//
// Values below the 0.5ms the device requires risk its ignoring subsequent
// commands.
func WithResetSettle(d time.Duration) Option {
	return func(a *ADC) {
		a.treset = d
	}
}

// WithRelease sets the resources released when the ADC is closed.
func WithRelease(c io.Closer) Option {
	return func(a *ADC) {
		a.release = c
	}
}

// New creates an ADC using the given transport.
func New(t Transport, options ...Option) *ADC {
	a := &ADC{
		t:      t,
		vref:   DefaultVref,
		tset:   defaultSettle,
		treset: defaultResetSettle,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Close releases the coprocessor and driver resources.
func (a *ADC) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	if a.release != nil {
		return a.release.Close()
	}
	return nil
}

// Configure resets the device and then writes the default configuration.
//
// Channel 0 is enabled on AIN0/AIN1, and channel 1 is defined on AIN2/AIN3
// but left disabled.
func (a *ADC) Configure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if err := a.reset(); err != nil {
		return err
	}
	writes := []struct {
		cmd   Command
		v     uint16
		issue bool
	}{
		{WriteCh0Reg, ch0Enable, true},
		{WriteCh1Reg, ch1Disable, true},
		{WriteSetupCon0Reg, setupCon0, true},
		// The mode is set by each read, so the default is never written.
		{WriteADCModeReg, modeCont, false},
		{WriteIFModeReg, ifMode, true},
		{WriteGPIOConReg, gpioCon, true},
	}
	for i, w := range writes {
		if i != 0 {
			time.Sleep(a.tset)
		}
		if !w.issue {
			continue
		}
		if err := a.write16(w.cmd, w.v); err != nil {
			return errors.Wrapf(err, "configure %s", w.cmd.Register())
		}
	}
	glog.V(1).Info("adc configured")
	return nil
}

// Reset resets the device and waits for it to settle.
func (a *ADC) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.reset()
}

func (a *ADC) reset() error {
	if err := a.t.SendReset(); err != nil {
		return errors.Wrap(err, "reset")
	}
	time.Sleep(a.treset)
	return nil
}

// SetChannel0 enables channel 0, after first disabling channel 1.
func (a *ADC) SetChannel0() error {
	return a.setChannel(WriteCh1Reg, ch1Disable, WriteCh0Reg, ch0Enable)
}

// SetChannel1 enables channel 1, after first disabling channel 0.
func (a *ADC) SetChannel1() error {
	return a.setChannel(WriteCh0Reg, ch0Disable, WriteCh1Reg, ch1Enable)
}

func (a *ADC) setChannel(dcmd Command, dv uint16, ecmd Command, ev uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if err := a.write16(dcmd, dv); err != nil {
		return err
	}
	return a.write16(ecmd, ev)
}

// SetSampleRate sets the output data rate of channel 0's filter.
//
// Codes beyond the loose upper bound are ignored.
func (a *ADC) SetSampleRate(rate Rate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if rate > maxRateCode {
		glog.Warningf("ignoring sample rate code %d", rate)
		return nil
	}
	return a.write16(WriteFiltCon0Reg, filtConBase|uint16(rate)&rateMask)
}

// ReadSingle performs a single conversion and returns the result in volts.
func (a *ADC) ReadSingle() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	if err := a.write16(WriteADCModeReg, modeSingle); err != nil {
		return 0, err
	}
	code, err := a.t.SendWriteReadSingle([]byte{byte(ReadDataReg)}, dataBytes)
	if err != nil {
		return 0, errors.Wrap(err, "read data")
	}
	return Volts(code, a.vref), nil
}

// ReadMultiple performs a burst of n conversions in continuous conversion
// mode and returns the results in volts.
//
// Requesting more than MaxBurst samples is a fatal usage error.
func (a *ADC) ReadMultiple(n int) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if n > MaxBurst {
		err := errors.Wrapf(ErrBurstTooLarge, "%d samples", n)
		a.t.Fail(err)
		return nil, err
	}
	if n < 1 {
		return nil, errors.Wrapf(ErrBurstTooSmall, "%d samples", n)
	}
	if err := a.write16(WriteADCModeReg, modeCont); err != nil {
		return nil, err
	}
	codes, err := a.t.SendWriteReadContinuous([]byte{byte(ReadDataReg)}, dataBytes, n)
	if err != nil {
		return nil, errors.Wrap(err, "read data")
	}
	volts := make([]float64, len(codes))
	for i, c := range codes {
		volts[i] = Volts(c, a.vref)
	}
	return volts, nil
}

// ID returns the contents of the ID register.
func (a *ADC) ID() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	return a.t.SendWriteReadSingle([]byte{byte(ReadIDReg)}, idBytes)
}

// ReadRegister returns the contents of a register.
func (a *ADC) ReadRegister(r Register) (uint32, error) {
	if !r.Valid() {
		return 0, errors.Wrapf(ErrUnknownRegister, "0x%02x", uint8(r))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	return a.t.SendWriteReadSingle([]byte{byte(r.ReadCmd())}, r.Size())
}

// WriteRegister writes the value to a register.
func (a *ADC) WriteRegister(r Register, v uint32) error {
	if !r.Valid() {
		return errors.Wrapf(ErrUnknownRegister, "0x%02x", uint8(r))
	}
	switch r {
	case Status, Data, ID:
		return errors.Wrapf(ErrReadOnly, "%s", r)
	}
	tx := []byte{byte(r.WriteCmd())}
	for i := r.Size() - 1; i >= 0; i-- {
		tx = append(tx, byte(v>>(uint(i)*8)))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.t.SendWrite(tx)
}

// Write sends the raw bytes to the device.
func (a *ADC) Write(tx []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.t.SendWrite(tx)
}

// WriteRead sends the raw bytes to the device and reads back an n byte word.
func (a *ADC) WriteRead(tx []byte, n int) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}
	return a.t.SendWriteReadSingle(tx, n)
}

func (a *ADC) write16(cmd Command, v uint16) error {
	glog.V(2).Infof("write %s 0x%04x", cmd.Register(), v)
	return a.t.SendWrite([]byte{byte(cmd), byte(v >> 8), byte(v)})
}

// Volts converts a bipolar offset binary code to volts.
func Volts(code uint32, vref float64) float64 {
	return float64(int32(code&0xffffff)-Offset) * vref / twoPow23
}

var (
	// ErrClosed indicates the ADC is closed.
	ErrClosed = errors.New("closed")

	// ErrBurstTooLarge indicates a burst exceeding MaxBurst samples.
	ErrBurstTooLarge = errors.New("burst too large")

	// ErrBurstTooSmall indicates a burst of no samples.
	ErrBurstTooSmall = errors.New("burst too small")

	// ErrUnknownRegister indicates an address that is not a device register.
	ErrUnknownRegister = errors.New("unknown register")

	// ErrReadOnly indicates a write to a read only register.
	ErrReadOnly = errors.New("read only register")
)
