// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package dispatch provides the command dispatch loop run by the
// coprocessor.
//
// The loop polls the mailbox flag, decodes the request, drives the SPI
// engine and writes the response before returning the flag to Idle.
// It performs no error recovery of its own. A request it cannot execute is
// completed without bus activity, and the host is left to detect the
// absence of a meaningful response.
package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/mailbox"
)

// Bus performs the SPI transactions requested via the mailbox.
//
// It is satisfied by *spi.Engine.
type Bus interface {
	Reset()
	Write(tx []byte)
	WriteReadSingle(tx []byte, n int) (uint32, error)
	WriteReadContinuous(tx []byte, n, samples int) ([]uint32, error)
}

// State is the state of the dispatch state machine.
type State int32

const (
	// Idle is polling the flag for a command.
	Idle State = iota
	// Decode is reading the request from the mailbox.
	Decode
	// Executing is performing the bus transaction.
	Executing
	// Respond is writing the response to the mailbox.
	Respond
)

var stateNames = map[State]string{
	Idle:      "idle",
	Decode:    "decode",
	Executing: "executing",
	Respond:   "respond",
}

func (s State) String() string {
	return stateNames[s]
}

// DefaultSelfTestHold is the time the self-test marker is held in the flag.
const DefaultSelfTestHold = time.Millisecond

// Dispatcher executes the commands posted to a mailbox.
type Dispatcher struct {
	mb    *mailbox.Mailbox
	bus   Bus
	hold  time.Duration
	idle  func()
	sleep func(time.Duration)
	state int32

	// flag values already reported as unknown
	mu      sync.Mutex
	unknown map[uint32]bool
}

// Option specifies a construction option for the Dispatcher.
type Option func(*Dispatcher)

// WithSelfTestHold sets the time the self-test marker is held.
func WithSelfTestHold(d time.Duration) Option {
	return func(dd *Dispatcher) {
		dd.hold = d
	}
}

// WithIdleFunc sets the function called by Run when a poll finds no command.
//
// The default yields the processor.
func WithIdleFunc(f func()) Option {
	return func(d *Dispatcher) {
		d.idle = f
	}
}

// WithSleepFunc sets the function used to hold the self-test marker.
//
// The default is time.Sleep.
func WithSleepFunc(f func(time.Duration)) Option {
	return func(d *Dispatcher) {
		d.sleep = f
	}
}

// New creates a Dispatcher serving the mailbox using the bus.
func New(mb *mailbox.Mailbox, bus Bus, options ...Option) *Dispatcher {
	d := &Dispatcher{
		mb:      mb,
		bus:     bus,
		hold:    DefaultSelfTestHold,
		idle:    runtime.Gosched,
		sleep:   time.Sleep,
		unknown: make(map[uint32]bool),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// State returns the current state of the dispatcher.
func (d *Dispatcher) State() State {
	return State(atomic.LoadInt32(&d.state))
}

func (d *Dispatcher) setState(s State) {
	atomic.StoreInt32(&d.state, int32(s))
}

// Run polls the mailbox until the context is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	glog.V(1).Info("dispatch loop started")
	defer glog.V(1).Info("dispatch loop stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !d.Step() {
			d.idle()
		}
	}
}

// Step performs a single poll of the mailbox flag and executes any command
// found.
//
// Returns true if a command was executed.
func (d *Dispatcher) Step() bool {
	flag := d.mb.Flag()
	cmd := mailbox.Command(flag)
	switch cmd {
	case mailbox.Nop, mailbox.Wait:
		return false
	case mailbox.SelfTest:
		d.selfTest()
		return true
	case mailbox.Write, mailbox.WriteReadSingle, mailbox.WriteReadContinuous, mailbox.Reset:
		d.execute(cmd)
		return true
	}
	d.reportUnknown(flag)
	return false
}

func (d *Dispatcher) selfTest() {
	d.setState(Executing)
	glog.V(2).Info("self-test")
	d.mb.SetFlag(mailbox.SelfTestMarker)
	d.sleep(d.hold)
	d.mb.SetFlag(mailbox.Idle)
	d.setState(Idle)
}

func (d *Dispatcher) execute(cmd mailbox.Command) {
	d.setState(Decode)
	d.mb.SetFlag(mailbox.Busy)
	defer func() {
		d.mb.SetFlag(mailbox.Idle)
		d.setState(Idle)
	}()
	req, err := d.mb.Decode(cmd)
	if err != nil {
		// Still completes to Idle, so the host sees whatever rx words
		// were already in the mailbox as the result.
		glog.Warningf("dropping %s request: %s", cmd, err)
		return
	}
	glog.V(2).Infof("%s tx %x rx %d x %d", cmd, req.Tx, req.RxBytes, req.Samples)
	d.setState(Executing)
	var rx []uint32
	switch cmd {
	case mailbox.Write:
		d.bus.Write(req.Tx)
	case mailbox.WriteReadSingle:
		var w uint32
		w, err = d.bus.WriteReadSingle(req.Tx, req.RxBytes)
		rx = []uint32{w}
	case mailbox.WriteReadContinuous:
		rx, err = d.bus.WriteReadContinuous(req.Tx, req.RxBytes, req.Samples)
	case mailbox.Reset:
		d.bus.Reset()
	}
	if err != nil {
		glog.Warningf("%s failed: %s", cmd, err)
		return
	}
	d.setState(Respond)
	for i, w := range rx {
		d.mb.Store(req.RxOffset+i, w)
	}
}

func (d *Dispatcher) reportUnknown(flag uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unknown[flag] {
		return
	}
	d.unknown[flag] = true
	glog.Warningf("ignoring unknown command flag 0x%02x", flag)
}

// Firmware returns a coprocessor image that runs the dispatch loop over the
// mailbox at base within the core's shared memory.
func Firmware(bus Bus, base int, options ...Option) func(context.Context, *pruadc.Mem) error {
	return func(ctx context.Context, mem *pruadc.Mem) error {
		mb, err := mailbox.New(mem, base)
		if err != nil {
			return err
		}
		return New(mb, bus, options...).Run(ctx)
	}
}
