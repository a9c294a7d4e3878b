// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package pruss

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc"
)

const (
	// RemoteprocRoot is the sysfs class directory of the remoteproc devices.
	RemoteprocRoot = "/sys/class/remoteproc"

	// DataRAMLength is the size of each PRU data RAM.
	DataRAMLength = 8192

	stateRunning = "running"
	stateOffline = "offline"
)

// Physical addresses of the PRU data RAMs of the AM335x.
var defaultDataRAM = [NumCores]int64{0x4a300000, 0x4a302000}

// Remoteproc is a Runtime that controls the PRU cores via the remoteproc
// sysfs interface and maps their data RAM from /dev/mem.
//
// The firmware image must already be installed in the firmware search path
// of the kernel, typically /lib/firmware.
type Remoteproc struct {
	root    string
	memPath string
	dram    [NumCores]int64
	// poll period and count when waiting for a state change
	period time.Duration
	tries  int

	mu     sync.Mutex
	inited bool
	mems   []*pruadc.Mem
}

// RemoteprocOption specifies a construction option for Remoteproc.
type RemoteprocOption func(*Remoteproc)

// WithRoot sets the sysfs directory containing the remoteproc devices.
func WithRoot(root string) RemoteprocOption {
	return func(r *Remoteproc) {
		r.root = root
	}
}

// WithMemPath sets the device from which the data RAM is mapped.
func WithMemPath(path string) RemoteprocOption {
	return func(r *Remoteproc) {
		r.memPath = path
	}
}

// WithDataRAM sets the addresses of the core data RAMs within the mem
// device.
func WithDataRAM(pru0, pru1 int64) RemoteprocOption {
	return func(r *Remoteproc) {
		r.dram = [NumCores]int64{pru0, pru1}
	}
}

// WithStatePoll sets the polling of the state when waiting for a core to
// start or stop.
func WithStatePoll(period time.Duration, tries int) RemoteprocOption {
	return func(r *Remoteproc) {
		r.period = period
		r.tries = tries
	}
}

// NewRemoteproc creates a Remoteproc runtime.
func NewRemoteproc(options ...RemoteprocOption) *Remoteproc {
	r := &Remoteproc{
		root:    RemoteprocRoot,
		memPath: pruadc.DevMemPath,
		dram:    defaultDataRAM,
		period:  50 * time.Millisecond,
		tries:   10,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// coreDir returns the sysfs directory of the core.
//
// remoteproc0 is the wakeup M3, so the PRUs follow.
func (r *Remoteproc) coreDir(core int) string {
	return filepath.Join(r.root, fmt.Sprintf("remoteproc%d", core+1))
}

// Init checks the remoteproc devices for the cores are present.
func (r *Remoteproc) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inited {
		return pruadc.ErrAlreadyOpen
	}
	for core := 0; core < NumCores; core++ {
		if _, err := os.Stat(filepath.Join(r.coreDir(core), "state")); err != nil {
			return errors.Wrapf(err, "core %d", core)
		}
	}
	r.inited = true
	return nil
}

// LoadAndStart sets the firmware of the core and starts it, first stopping
// the core if it is running.
func (r *Remoteproc) LoadAndStart(core int, image string) error {
	if err := r.check(core); err != nil {
		return err
	}
	if err := r.stop(core); err != nil {
		return err
	}
	dir := r.coreDir(core)
	if err := writeAttr(filepath.Join(dir, "firmware"), image); err != nil {
		return errors.Wrapf(ErrUnknownImage, "%q: %s", image, err)
	}
	if err := writeAttr(filepath.Join(dir, "state"), "start"); err != nil {
		return err
	}
	if err := r.waitState(core, stateRunning); err != nil {
		return err
	}
	glog.V(1).Infof("core %d started %s", core, image)
	return nil
}

// Reset stops the core.
func (r *Remoteproc) Reset(core int) error {
	if err := r.check(core); err != nil {
		return err
	}
	return r.stop(core)
}

func (r *Remoteproc) stop(core int) error {
	state, err := r.state(core)
	if err != nil {
		return err
	}
	// stopping an offline core is an error to the kernel
	if state != stateRunning {
		return nil
	}
	if err := writeAttr(filepath.Join(r.coreDir(core), "state"), "stop"); err != nil {
		return err
	}
	if err := r.waitState(core, stateOffline); err != nil {
		return errors.Wrapf(ErrNotHalted, "core %d: %s", core, err)
	}
	glog.V(1).Infof("core %d halted", core)
	return nil
}

// MapSharedMemory maps the data RAM of the core.
func (r *Remoteproc) MapSharedMemory(core int) (*pruadc.Mem, error) {
	if err := r.check(core); err != nil {
		return nil, err
	}
	mem, err := pruadc.Map(r.memPath, r.dram[core], DataRAMLength)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.mems = append(r.mems, mem)
	r.mu.Unlock()
	return mem, nil
}

// Close unmaps any mapped memory.
//
// The cores are left in their current state.
func (r *Remoteproc) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inited {
		return ErrNotInitialised
	}
	var err error
	for _, m := range r.mems {
		if merr := m.Close(); merr != nil && merr != pruadc.ErrClosed && err == nil {
			err = merr
		}
	}
	r.mems = nil
	r.inited = false
	return err
}

func (r *Remoteproc) check(core int) error {
	if err := checkCore(core); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inited {
		return ErrNotInitialised
	}
	return nil
}

func (r *Remoteproc) state(core int) (string, error) {
	b, err := os.ReadFile(filepath.Join(r.coreDir(core), "state"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Wait for the sysfs state of the core to report the desired state.
func (r *Remoteproc) waitState(core int, want string) error {
	try := 0
	for {
		state, err := r.state(core)
		if err == nil && state == want {
			return nil
		}
		try++
		if try > r.tries {
			return errors.Errorf("timeout waiting for %s, state %q", want, state)
		}
		time.Sleep(r.period)
	}
}

func writeAttr(path, value string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(value)
	return err
}
