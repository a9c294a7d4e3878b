// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package driver provides the host side of the mailbox command channel.
//
// Each request is laid out in the mailbox with the command flag written
// last, and the driver then polls the flag until the coprocessor returns
// it to Idle. The poll is bounded by a retry budget and, optionally, a
// deadline. Exhausting either is fatal: the coprocessor core is reset and
// the FatalFunc is called, which by default terminates the process.
package driver

import (
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc/mailbox"
)

// DefaultRetries is the number of flag polls before a request is deemed
// to have timed out.
const DefaultRetries = 10000000

// Resetter resets a coprocessor core.
//
// It is satisfied by the pruss runtimes.
type Resetter interface {
	Reset(core int) error
}

// Clock provides the time used to enforce the deadline.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// FatalFunc is called with the error that caused a fatal failure, after the
// core has been reset.
//
// The default logs the error and exits the process. If a FatalFunc returns
// then the failing operation returns the error.
type FatalFunc func(err error)

func defaultFatal(err error) {
	glog.Fatalf("pruadc: %s", err)
}

// Driver issues requests to the coprocessor via the mailbox.
//
// Requests are serialised, so only one is ever outstanding.
type Driver struct {
	mu      sync.Mutex
	mb      *mailbox.Mailbox
	rt      Resetter
	core    int
	retries int
	timeout time.Duration
	clock   Clock
	fatal   FatalFunc
	// number of polls performed by the last completed wait
	polls  int
	closed bool
}

// Option specifies a construction option for the Driver.
type Option func(*Driver)

// WithRetries sets the retry budget of the completion poll.
func WithRetries(n int) Option {
	return func(d *Driver) {
		d.retries = n
	}
}

// WithTimeout sets a deadline for the completion poll, in addition to the
// retry budget.
//
// A zero timeout disables the deadline.
func WithTimeout(t time.Duration) Option {
	return func(d *Driver) {
		d.timeout = t
	}
}

// WithClock sets the clock used to enforce the timeout.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithFatal sets the function called on fatal errors.
func WithFatal(f FatalFunc) Option {
	return func(d *Driver) {
		d.fatal = f
	}
}

// New creates a Driver for the mailbox served by the core.
//
// The Resetter may be nil, in which case fatal errors do not attempt to
// reset the core.
func New(mb *mailbox.Mailbox, rt Resetter, core int, options ...Option) *Driver {
	d := &Driver{
		mb:      mb,
		rt:      rt,
		core:    core,
		retries: DefaultRetries,
		clock:   systemClock{},
		fatal:   defaultFatal,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Polls returns the number of flag polls performed by the last successful
// request.
func (d *Driver) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// SendWrite writes the tx bytes to the device.
func (d *Driver) SendWrite(tx []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.mb.PutWrite(tx); err != nil {
		return d.fail(errors.Wrapf(ErrTooLarge, "write: %s", err))
	}
	return d.issue(mailbox.Write, true)
}

// SendWriteReadSingle writes the tx bytes to the device and returns the
// rxBytes wide word read in the same frame.
func (d *Driver) SendWriteReadSingle(tx []byte, rxBytes int) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return 0, err
	}
	off, err := d.mb.PutWriteReadSingle(tx, rxBytes)
	if err != nil {
		return 0, d.fail(errors.Wrapf(ErrTooLarge, "writeread: %s", err))
	}
	if err := d.issue(mailbox.WriteReadSingle, true); err != nil {
		return 0, err
	}
	return d.mb.Load(off), nil
}

// SendWriteReadContinuous performs a burst of samples, each of which writes
// the tx bytes and reads an rxBytes wide word.
func (d *Driver) SendWriteReadContinuous(tx []byte, rxBytes, samples int) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return nil, err
	}
	off, err := d.mb.PutWriteReadContinuous(tx, rxBytes, samples)
	if err != nil {
		return nil, d.fail(errors.Wrapf(ErrTooLarge, "writeread burst: %s", err))
	}
	if err := d.issue(mailbox.WriteReadContinuous, true); err != nil {
		return nil, err
	}
	rx := make([]uint32, samples)
	for i := range rx {
		rx[i] = d.mb.Load(off + i)
	}
	return rx, nil
}

// SendReset resets the device interface.
func (d *Driver) SendReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	return d.issue(mailbox.Reset, true)
}

// TestCommunication issues a self-test and returns the number of polls
// until it completed.
//
// Unlike other requests, a timeout is returned as an error rather than
// being fatal.
func (d *Driver) TestCommunication() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return 0, err
	}
	if err := d.issue(mailbox.SelfTest, false); err != nil {
		return 0, err
	}
	return d.polls, nil
}

// TestRAM writes the value to the mailbox word at off and checks it reads
// back.
//
// The previous value of the word is restored. The flag word cannot be
// tested.
func (d *Driver) TestRAM(off int, v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	if off <= mailbox.FlagOffset || off >= d.mb.Len() {
		return errors.Wrapf(ErrOffset, "%d", off)
	}
	old := d.mb.Load(off)
	d.mb.Store(off, v)
	rv := d.mb.Load(off)
	d.mb.Store(off, old)
	if rv != v {
		return errors.Wrapf(ErrRAM, "offset %d wrote 0x%08x read 0x%08x", off, v, rv)
	}
	return nil
}

// Fail handles a fatal usage error detected by a higher layer.
//
// The core is reset and the FatalFunc called.
func (d *Driver) Fail(err error) {
	d.fail(err)
}

// Close detaches the driver from the mailbox.
//
// Must be called before the shared memory is released. Subsequent requests
// return ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

func (d *Driver) ready() error {
	if d.closed {
		return ErrClosed
	}
	if f := d.mb.Flag(); f != mailbox.Idle {
		return errors.Wrapf(ErrBusy, "flag 0x%02x", f)
	}
	return nil
}

func (d *Driver) issue(cmd mailbox.Command, fatal bool) error {
	glog.V(2).Infof("send %s", cmd)
	// releases the coprocessor, so must follow the payload
	d.mb.SetFlag(uint32(cmd))
	var deadline time.Time
	if d.timeout > 0 {
		deadline = d.clock.Now().Add(d.timeout)
	}
	for i := 0; i < d.retries; i++ {
		if d.mb.Flag() == mailbox.Idle {
			d.polls = i + 1
			glog.V(2).Infof("%s complete after %d polls", cmd, d.polls)
			return nil
		}
		if d.timeout > 0 && d.clock.Now().After(deadline) {
			err := errors.Wrapf(ErrTimeout, "%s after %d polls, exceeded %s", cmd, i+1, d.timeout)
			if fatal {
				return d.fail(err)
			}
			return err
		}
		runtime.Gosched()
	}
	err := errors.Wrapf(ErrTimeout, "%s after %d polls", cmd, d.retries)
	if fatal {
		return d.fail(err)
	}
	return err
}

func (d *Driver) fail(err error) error {
	glog.Errorf("fatal: %s", err)
	if d.rt != nil {
		glog.Infof("resetting core %d", d.core)
		if rerr := d.rt.Reset(d.core); rerr != nil {
			glog.Errorf("reset core %d: %s", d.core, rerr)
		}
	}
	d.fatal(err)
	return err
}

var (
	// ErrClosed indicates the driver has been closed.
	ErrClosed = errors.New("closed")

	// ErrTimeout indicates the coprocessor did not complete a request in
	// time.
	ErrTimeout = errors.New("timeout")

	// ErrTooLarge indicates a request whose sizes do not fit the mailbox or
	// the coprocessor buffers.
	ErrTooLarge = errors.New("request size invalid")

	// ErrBusy indicates a request was attempted while the mailbox was not
	// Idle.
	ErrBusy = errors.New("mailbox busy")

	// ErrRAM indicates a shared memory word did not read back as written.
	ErrRAM = errors.New("ram test failed")

	// ErrOffset indicates an offset outside the testable mailbox words.
	ErrOffset = errors.New("invalid offset")
)
