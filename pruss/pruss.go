// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package pruss provides the runtimes that bring up the coprocessor cores
// and expose their shared memory.
//
// Remoteproc drives the PRU cores of an AM335x via the Linux remoteproc
// framework. Local runs Go firmware on goroutines, standing in for the
// cores where no PRU is available.
package pruss

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc"
)

// Coprocessor cores.
const (
	PRU0 = iota
	PRU1
	// NumCores is the number of cores in the subsystem.
	NumCores
)

// Delays during bring up.
const (
	// StartSettle is the time allowed for a core to begin executing.
	StartSettle = 500 * time.Microsecond

	// CommandSettle is the time allowed before the first command.
	CommandSettle = time.Millisecond
)

// Runtime brings up and tears down the coprocessor cores.
type Runtime interface {
	Init() error
	LoadAndStart(core int, image string) error
	Reset(core int) error
	MapSharedMemory(core int) (*pruadc.Mem, error)
	Close() error
}

// Start initialises the runtime, starts the image on the core and returns
// the core's shared memory once the core is ready to accept commands.
func Start(rt Runtime, core int, image string) (*pruadc.Mem, error) {
	if err := rt.Init(); err != nil {
		return nil, errors.Wrap(err, "init")
	}
	if err := rt.LoadAndStart(core, image); err != nil {
		return nil, errors.Wrapf(err, "start %s on core %d", image, core)
	}
	time.Sleep(StartSettle)
	mem, err := rt.MapSharedMemory(core)
	if err != nil {
		rt.Reset(core)
		return nil, errors.Wrapf(err, "map core %d", core)
	}
	time.Sleep(CommandSettle)
	glog.Infof("core %d running %s", core, image)
	return mem, nil
}

func checkCore(core int) error {
	if core < 0 || core >= NumCores {
		return errors.Wrapf(ErrUnknownCore, "%d", core)
	}
	return nil
}

var (
	// ErrUnknownCore indicates a core number outside the subsystem.
	ErrUnknownCore = errors.New("unknown core")

	// ErrUnknownImage indicates a firmware image that cannot be found.
	ErrUnknownImage = errors.New("unknown image")

	// ErrNotHalted indicates a core did not halt when reset.
	ErrNotHalted = errors.New("core did not halt")

	// ErrNotInitialised indicates the runtime has not been initialised.
	ErrNotInitialised = errors.New("not initialised")
)
