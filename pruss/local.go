// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package pruss

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc"
)

// LocalMemWords is the size of the shared memory of each Local core, matching
// the 8KB data RAM of a PRU.
const LocalMemWords = 2048

// Firmware is the image run by a Local core.
//
// It must return once the context is done.
type Firmware func(ctx context.Context, mem *pruadc.Mem) error

// Local is a Runtime that runs registered Firmware on goroutines.
type Local struct {
	mu     sync.Mutex
	images map[string]Firmware
	cores  [NumCores]*localCore
	// time allowed for a core to halt when reset
	haltTimeout time.Duration
}

type localCore struct {
	mem    *pruadc.Mem
	image  string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// LocalOption specifies a construction option for Local.
type LocalOption func(*Local)

// WithFirmware registers the firmware under the image name.
func WithFirmware(image string, fw Firmware) LocalOption {
	return func(l *Local) {
		l.images[image] = fw
	}
}

// WithHaltTimeout sets the time allowed for a core to halt when reset.
func WithHaltTimeout(d time.Duration) LocalOption {
	return func(l *Local) {
		l.haltTimeout = d
	}
}

// NewLocal creates a Local runtime.
func NewLocal(options ...LocalOption) *Local {
	l := &Local{
		images:      make(map[string]Firmware),
		haltTimeout: time.Second,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Register adds the firmware under the image name, replacing any existing
// image of that name.
func (l *Local) Register(image string, fw Firmware) {
	l.mu.Lock()
	l.images[image] = fw
	l.mu.Unlock()
}

// Init allocates the shared memory of the cores.
func (l *Local) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cores[0] != nil {
		return pruadc.ErrAlreadyOpen
	}
	for i := range l.cores {
		l.cores[i] = &localCore{mem: pruadc.NewMem(LocalMemWords)}
	}
	return nil
}

// LoadAndStart starts the image on the core, first halting any image
// already running.
func (l *Local) LoadAndStart(core int, image string) error {
	if err := checkCore(core); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.cores[core]
	if c == nil {
		return ErrNotInitialised
	}
	fw, ok := l.images[image]
	if !ok {
		return errors.Wrapf(ErrUnknownImage, "%q", image)
	}
	if err := l.halt(core, c); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.image = image
	c.cancel = cancel
	c.done = make(chan struct{})
	c.err = nil
	go func(done chan struct{}) {
		// cores are dedicated, so keep the firmware on its own thread
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		err := fw(ctx, c.mem)
		if err != nil && errors.Cause(err) != context.Canceled {
			glog.Errorf("core %d %s: %s", core, image, err)
		}
		l.mu.Lock()
		c.err = err
		l.mu.Unlock()
		close(done)
	}(c.done)
	glog.V(1).Infof("core %d started %s", core, image)
	return nil
}

// Reset halts the core.
func (l *Local) Reset(core int) error {
	if err := checkCore(core); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.cores[core]
	if c == nil {
		return ErrNotInitialised
	}
	return l.halt(core, c)
}

// halt must be called with the mu held.
func (l *Local) halt(core int, c *localCore) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	done := c.done
	// the firmware takes the mu to record its result
	l.mu.Unlock()
	var err error
	select {
	case <-done:
	case <-time.After(l.haltTimeout):
		err = errors.Wrapf(ErrNotHalted, "core %d", core)
	}
	l.mu.Lock()
	if err != nil {
		return err
	}
	c.cancel = nil
	glog.V(1).Infof("core %d halted", core)
	return nil
}

// Err returns the error returned by the firmware last run on the core.
func (l *Local) Err(core int) error {
	if checkCore(core) != nil {
		return ErrUnknownCore
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.cores[core]; c != nil {
		return c.err
	}
	return nil
}

// MapSharedMemory returns the shared memory of the core.
func (l *Local) MapSharedMemory(core int) (*pruadc.Mem, error) {
	if err := checkCore(core); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.cores[core]
	if c == nil {
		return nil, ErrNotInitialised
	}
	return c.mem, nil
}

// Close halts all cores and releases their memory.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cores[0] == nil {
		return ErrNotInitialised
	}
	var err error
	for i, c := range l.cores {
		if herr := l.halt(i, c); herr != nil {
			// still running, so the memory cannot be released
			if err == nil {
				err = herr
			}
			continue
		}
		c.mem.Close()
	}
	if err == nil {
		l.cores = [NumCores]*localCore{}
	}
	return err
}
