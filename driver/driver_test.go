// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package driver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/adcsim"
	"github.com/warthog618/pruadc/dispatch"
	"github.com/warthog618/pruadc/driver"
	"github.com/warthog618/pruadc/mailbox"
	"github.com/warthog618/pruadc/spi"
)

const base = mailbox.DefaultOffset

type store struct {
	off int
	v   uint32
	// flag at the time of the store
	flag uint32
}

// words wraps shared memory to record traffic and optionally complete
// commands inline, as a coprocessor would.
type words struct {
	mu        sync.Mutex
	mem       *pruadc.Mem
	flagLoads int
	stores    []store
	autoIdle  bool
	stuckMask uint32
}

func newWords(n int) *words {
	return &words{mem: pruadc.NewMem(n)}
}

func (w *words) Len() int {
	return w.mem.Len()
}

func (w *words) Load(off int) uint32 {
	w.mu.Lock()
	if off == base {
		w.flagLoads++
	}
	w.mu.Unlock()
	return w.mem.Load(off) &^ w.stuckMask
}

func (w *words) Store(off int, v uint32) {
	w.mu.Lock()
	w.stores = append(w.stores, store{off, v, w.mem.Load(base)})
	w.mu.Unlock()
	w.mem.Store(off, v)
	if off == base && w.autoIdle && v != mailbox.Idle {
		w.mem.Store(base, mailbox.Idle)
	}
}

type resetter struct {
	cores []int
}

func (r *resetter) Reset(core int) error {
	r.cores = append(r.cores, core)
	return nil
}

type fatals struct {
	errs []error
}

func (f *fatals) fatal(err error) {
	f.errs = append(f.errs, err)
}

// clock advances a fixed step on every read.
type clock struct {
	now   time.Time
	step  time.Duration
	reads int
}

func (c *clock) Now() time.Time {
	c.reads++
	c.now = c.now.Add(c.step)
	return c.now
}

func newDriver(t *testing.T, w mailbox.Words, options ...driver.Option) (*driver.Driver, *resetter, *fatals) {
	t.Helper()
	mb, err := mailbox.New(w, base)
	require.Nil(t, err)
	r := resetter{}
	f := fatals{}
	options = append([]driver.Option{driver.WithFatal(f.fatal)}, options...)
	return driver.New(mb, &r, 1, options...), &r, &f
}

func TestTimeoutRetries(t *testing.T) {
	w := newWords(base + 32)
	d, r, f := newDriver(t, w, driver.WithRetries(1000))
	err := d.SendWrite([]byte{0x10, 0x80, 0x01})
	assert.Equal(t, driver.ErrTimeout, errors.Cause(err))
	// one check that the mailbox is idle, then the retry budget
	assert.Equal(t, 1001, w.flagLoads)
	assert.Equal(t, []int{1}, r.cores)
	require.Len(t, f.errs, 1)
	assert.Equal(t, driver.ErrTimeout, errors.Cause(f.errs[0]))
}

func TestTimeoutDeadline(t *testing.T) {
	w := newWords(base + 32)
	c := clock{now: time.Unix(0, 0), step: time.Millisecond}
	d, r, f := newDriver(t, w,
		driver.WithTimeout(10*time.Millisecond),
		driver.WithClock(&c))
	_, err := d.SendWriteReadSingle([]byte{0x47}, 2)
	assert.Equal(t, driver.ErrTimeout, errors.Cause(err))
	assert.Less(t, w.flagLoads, 20)
	assert.Equal(t, []int{1}, r.cores)
	assert.Len(t, f.errs, 1)
}

func TestTimeoutNoResetter(t *testing.T) {
	w := newWords(base + 32)
	mb, err := mailbox.New(w, base)
	require.Nil(t, err)
	f := fatals{}
	d := driver.New(mb, nil, 0, driver.WithRetries(10), driver.WithFatal(f.fatal))
	err = d.SendReset()
	assert.Equal(t, driver.ErrTimeout, errors.Cause(err))
	assert.Len(t, f.errs, 1)
}

func TestBusy(t *testing.T) {
	w := newWords(base + 32)
	d, r, f := newDriver(t, w)
	w.mem.Store(base, uint32(mailbox.Write))
	err := d.SendWrite([]byte{0x10})
	assert.Equal(t, driver.ErrBusy, errors.Cause(err))
	assert.Empty(t, w.stores)
	assert.Empty(t, r.cores)
	assert.Empty(t, f.errs)
}

func TestTooLarge(t *testing.T) {
	w := newWords(base + 32)
	w.autoIdle = true
	d, r, f := newDriver(t, w)
	err := d.SendWrite([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, driver.ErrTooLarge, errors.Cause(err))
	_, err = d.SendWriteReadSingle([]byte{0x44}, 5)
	assert.Equal(t, driver.ErrTooLarge, errors.Cause(err))
	_, err = d.SendWriteReadContinuous([]byte{0x44}, 3, 100)
	assert.Equal(t, driver.ErrTooLarge, errors.Cause(err))
	_, err = d.SendWriteReadContinuous([]byte{0x44}, 3, 0)
	assert.Equal(t, driver.ErrTooLarge, errors.Cause(err))
	assert.Len(t, f.errs, 4)
	assert.Equal(t, []int{1, 1, 1, 1}, r.cores)
	// no command was released
	for _, s := range w.stores {
		assert.NotEqual(t, base, s.off)
	}
}

func TestOrdering(t *testing.T) {
	w := newWords(base + 32)
	w.autoIdle = true
	d, _, f := newDriver(t, w)
	err := d.SendWrite([]byte{0x10, 0x80, 0x01})
	require.Nil(t, err)
	_, err = d.SendWriteReadSingle([]byte{0x44}, 3)
	require.Nil(t, err)
	_, err = d.SendWriteReadContinuous([]byte{0x44}, 3, 8)
	require.Nil(t, err)
	err = d.SendReset()
	require.Nil(t, err)
	assert.Empty(t, f.errs)

	// split into transactions at each flag write
	var cmds []uint32
	var payload int
	for _, s := range w.stores {
		assert.Equal(t, mailbox.Idle, s.flag)
		if s.off == base {
			cmds = append(cmds, s.v)
			continue
		}
		payload++
	}
	assert.Equal(t, []uint32{
		uint32(mailbox.Write),
		uint32(mailbox.WriteReadSingle),
		uint32(mailbox.WriteReadContinuous),
		uint32(mailbox.Reset),
	}, cmds)
	// write: count + 3, single: count + 1 + rxcnt + rx, burst: count + 1 + 2 + 8
	assert.Equal(t, 4+4+12, payload)
	last := w.stores[len(w.stores)-1]
	assert.Equal(t, base, last.off)
}

func TestRAM(t *testing.T) {
	w := newWords(base + 32)
	d, _, _ := newDriver(t, w)
	w.mem.Store(base+5, 42)
	err := d.TestRAM(5, 0xdeadbeef)
	assert.Nil(t, err)
	assert.Equal(t, uint32(42), w.mem.Load(base+5))

	err = d.TestRAM(0, 1)
	assert.Equal(t, driver.ErrOffset, errors.Cause(err))
	err = d.TestRAM(32, 1)
	assert.Equal(t, driver.ErrOffset, errors.Cause(err))

	w.stuckMask = 0x100
	err = d.TestRAM(5, 0xffffffff)
	assert.Equal(t, driver.ErrRAM, errors.Cause(err))
}

func TestClose(t *testing.T) {
	w := newWords(base + 32)
	w.autoIdle = true
	d, r, f := newDriver(t, w)
	require.Nil(t, d.SendReset())
	assert.Nil(t, d.Close())
	assert.Equal(t, driver.ErrClosed, d.Close())
	loads := w.flagLoads
	stores := len(w.stores)

	assert.Equal(t, driver.ErrClosed, d.SendWrite([]byte{0x10}))
	_, err := d.SendWriteReadSingle([]byte{0x47}, 2)
	assert.Equal(t, driver.ErrClosed, err)
	_, err = d.SendWriteReadContinuous([]byte{0x44}, 3, 4)
	assert.Equal(t, driver.ErrClosed, err)
	assert.Equal(t, driver.ErrClosed, d.SendReset())
	_, err = d.TestCommunication()
	assert.Equal(t, driver.ErrClosed, err)
	assert.Equal(t, driver.ErrClosed, d.TestRAM(5, 1))
	// the mailbox is never touched
	assert.Equal(t, loads, w.flagLoads)
	assert.Len(t, w.stores, stores)
	assert.Empty(t, r.cores)
	assert.Empty(t, f.errs)
}

func TestCommunicationTimeout(t *testing.T) {
	w := newWords(base + 32)
	d, r, f := newDriver(t, w, driver.WithRetries(100))
	_, err := d.TestCommunication()
	assert.Equal(t, driver.ErrTimeout, errors.Cause(err))
	assert.Empty(t, f.errs)
	assert.Empty(t, r.cores)
}

func TestFail(t *testing.T) {
	w := newWords(base + 32)
	d, r, f := newDriver(t, w)
	ferr := errors.New("usage")
	d.Fail(ferr)
	assert.Equal(t, []error{ferr}, f.errs)
	assert.Equal(t, []int{1}, r.cores)
}

// coprocessor runs the dispatch loop against a simulated device.
func coprocessor(t *testing.T, w mailbox.Words, dev *adcsim.Device) {
	t.Helper()
	mb, err := mailbox.New(w, base)
	require.Nil(t, err)
	e := spi.New(dev.CS(), dev.Clk(), dev.DIn(), dev.DOut(), spi.WithTimer(spi.NopTimer{}))
	disp := dispatch.New(mb, e, dispatch.WithSelfTestHold(0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		disp.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWithCoprocessor(t *testing.T) {
	w := newWords(base + 64)
	dev := adcsim.New(adcsim.WithCodes(0x800000, 0x900000, 0x700000, 0x800000))
	coprocessor(t, w, dev)
	d, _, f := newDriver(t, w, driver.WithTimeout(5*time.Second))

	err := d.SendReset()
	require.Nil(t, err)
	assert.Equal(t, 1, dev.Resets())

	err = d.SendWrite([]byte{0x28, 0x00, 0x6a})
	require.Nil(t, err)
	v, err := d.SendWriteReadSingle([]byte{0x68}, 2)
	require.Nil(t, err)
	assert.Equal(t, uint32(0x006a), v)

	id, err := d.SendWriteReadSingle([]byte{0x47}, 2)
	require.Nil(t, err)
	assert.Equal(t, uint32(adcsim.DefaultID), id)

	rx, err := d.SendWriteReadContinuous([]byte{0x44}, 3, 4)
	require.Nil(t, err)
	assert.Equal(t, []uint32{0x800000, 0x900000, 0x700000, 0x800000}, rx)

	polls, err := d.TestCommunication()
	require.Nil(t, err)
	assert.Greater(t, polls, 0)
	assert.Empty(t, f.errs)
}
