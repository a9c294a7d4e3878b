// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package board_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/adcsim"
	"github.com/warthog618/pruadc/board"
	"github.com/warthog618/pruadc/driver"
	"github.com/warthog618/pruadc/mailbox"
	"github.com/warthog618/pruadc/pruss"
)

type fatals struct {
	errs []error
}

func (f *fatals) fatal(err error) {
	f.errs = append(f.errs, err)
}

func openSim(t *testing.T, codes ...uint32) (*board.Board, *fatals) {
	t.Helper()
	f := fatals{}
	cfg := board.DefaultConfig()
	cfg.Backend = board.Sim
	cfg.Timeout = 5 * time.Second
	cfg.SimCodes = codes
	cfg.Fatal = f.fatal
	b, err := board.Open(cfg)
	require.Nil(t, err)
	require.NotNil(t, b.Sim)
	t.Cleanup(func() { b.Close() })
	return b, &f
}

func TestReadSingle(t *testing.T) {
	b, f := openSim(t, 0xa00000)
	require.Nil(t, b.ADC.Configure())
	require.Nil(t, b.ADC.SetChannel0())
	v, err := b.ADC.ReadSingle()
	require.Nil(t, err)
	assert.InDelta(t, 1.024, v, 1e-9)
	assert.Equal(t, uint32(0x001c), b.Sim.Register(ad7172.ADCMode))
	assert.Empty(t, f.errs)
}

func TestReadMultiple(t *testing.T) {
	b, f := openSim(t, 0x800000, 0x900000, 0x700000, 0x800000)
	require.Nil(t, b.ADC.Configure())
	v, err := b.ADC.ReadMultiple(4)
	require.Nil(t, err)
	expected := []float64{0, 0.512, -0.512, 0}
	require.Len(t, v, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], v[i], 1e-9)
	}
	assert.Equal(t, uint32(0x000c), b.Sim.Register(ad7172.ADCMode))
	assert.Empty(t, f.errs)
}

func TestReadMultipleTooLarge(t *testing.T) {
	b, f := openSim(t)
	_, err := b.ADC.ReadMultiple(ad7172.MaxBurst + 1)
	assert.Equal(t, ad7172.ErrBurstTooLarge, errors.Cause(err))
	assert.Len(t, f.errs, 1)
}

func TestConfigure(t *testing.T) {
	b, _ := openSim(t)
	require.Nil(t, b.ADC.Configure())
	assert.Equal(t, 1, b.Sim.Resets())
	assert.Equal(t, uint32(0x8001), b.Sim.Register(ad7172.Ch0))
	assert.Equal(t, uint32(0x0043), b.Sim.Register(ad7172.Ch1))
	assert.Equal(t, uint32(0x1300), b.Sim.Register(ad7172.SetupCon0))
	assert.Equal(t, uint32(0x0000), b.Sim.Register(ad7172.IFMode))
	assert.Equal(t, uint32(0x0000), b.Sim.Register(ad7172.GPIOCon))
	// left at its reset value
	assert.Equal(t, uint32(0x2000), b.Sim.Register(ad7172.ADCMode))
	for _, tx := range b.Sim.Transactions() {
		if len(tx) > 0 {
			assert.NotEqual(t, byte(ad7172.WriteADCModeReg), tx[0])
		}
	}
}

func TestChannels(t *testing.T) {
	b, _ := openSim(t)
	require.Nil(t, b.ADC.SetChannel1())
	assert.Equal(t, uint32(0x0001), b.Sim.Register(ad7172.Ch0))
	assert.Equal(t, uint32(0x8043), b.Sim.Register(ad7172.Ch1))
	require.Nil(t, b.ADC.SetChannel0())
	assert.Equal(t, uint32(0x8001), b.Sim.Register(ad7172.Ch0))
	assert.Equal(t, uint32(0x0043), b.Sim.Register(ad7172.Ch1))
}

func TestID(t *testing.T) {
	b, _ := openSim(t)
	id, err := b.ADC.ID()
	require.Nil(t, err)
	assert.Equal(t, uint32(adcsim.DefaultID), id)
}

func TestSampleRate(t *testing.T) {
	b, _ := openSim(t)
	require.Nil(t, b.ADC.SetSampleRate(ad7172.Rate1008))
	v, err := b.ADC.ReadRegister(ad7172.FiltCon0)
	require.Nil(t, err)
	assert.Equal(t, uint32(0x006a), v)
	// ignored
	require.Nil(t, b.ADC.SetSampleRate(0x17))
	v, err = b.ADC.ReadRegister(ad7172.FiltCon0)
	require.Nil(t, err)
	assert.Equal(t, uint32(0x006a), v)
}

func TestRegisterRoundTrip(t *testing.T) {
	b, _ := openSim(t)
	for hi := 0; hi < 0x100; hi += 0x11 {
		for lo := 0; lo < 0x100; lo += 0x0f {
			err := b.ADC.Write([]byte{byte(ad7172.WriteFiltCon0Reg), byte(hi), byte(lo)})
			require.Nil(t, err)
			v, err := b.ADC.ReadRegister(ad7172.FiltCon0)
			require.Nil(t, err)
			assert.Equal(t, uint32(hi<<8|lo), v)
		}
	}
}

func TestSelfTest(t *testing.T) {
	b, _ := openSim(t)
	polls, err := b.Driver.TestCommunication()
	require.Nil(t, err)
	assert.Greater(t, polls, 0)
	assert.Nil(t, b.Driver.TestRAM(8, 0x5a5a5a5a))
	// the mailbox runs from its offset to the end of the core memory
	last := pruss.LocalMemWords - mailbox.DefaultOffset - 1
	assert.Nil(t, b.Driver.TestRAM(last, 0xa5a5a5a5))
	err = b.Driver.TestRAM(last+1, 0xa5a5a5a5)
	assert.Equal(t, driver.ErrOffset, errors.Cause(err))
}

func TestClose(t *testing.T) {
	cfg := board.DefaultConfig()
	cfg.Backend = board.Sim
	b, err := board.Open(cfg)
	require.Nil(t, err)
	assert.Nil(t, b.Close())
	assert.Equal(t, ad7172.ErrClosed, b.Close())
	_, err = b.ADC.ID()
	assert.Equal(t, ad7172.ErrClosed, err)
	// the shared memory is gone, so the driver must not touch it
	_, err = b.Driver.TestCommunication()
	assert.Equal(t, driver.ErrClosed, err)
	assert.Equal(t, driver.ErrClosed, b.Driver.TestRAM(8, 1))
	assert.Equal(t, driver.ErrClosed, b.Driver.SendReset())
}

func TestUnknownBackend(t *testing.T) {
	cfg := board.DefaultConfig()
	cfg.Backend = "pigeon"
	_, err := board.Open(cfg)
	assert.Equal(t, board.ErrUnknownBackend, errors.Cause(err))
}

func TestBadOffset(t *testing.T) {
	cfg := board.DefaultConfig()
	cfg.Backend = board.Sim
	cfg.RAMOffset = 4096
	_, err := board.Open(cfg)
	assert.NotNil(t, err)
}

func TestGPIO(t *testing.T) {
	mem := pruadc.NewMem(64)
	defer board.SetOpenGPIO(func() (*pruadc.Mem, error) { return mem, nil })()
	bcm := func(pin int) uint32 { return 1 << uint(pin) }

	cfg := board.DefaultConfig()
	cfg.Backend = board.GPIO
	cfg.Tclk = 0
	cfg.Timeout = 5 * time.Second
	b, err := board.Open(cfg)
	require.Nil(t, err)
	// CS, Clk and MOSI are outputs, MISO an input
	fsel0 := mem.Load(0)
	fsel1 := mem.Load(1)
	assert.Equal(t, uint32(1), fsel0>>(3*8)&7)
	assert.Equal(t, uint32(0), fsel0>>(3*9)&7)
	assert.Equal(t, uint32(1), fsel1>>(3*0)&7)
	assert.Equal(t, uint32(1), fsel1>>(3*1)&7)

	// MISO held high
	mem.Store(13, bcm(cfg.Pins.MISO))
	id, err := b.ADC.ID()
	require.Nil(t, err)
	assert.Equal(t, uint32(0xffff), id)
	// bus left idle, with CS high
	assert.Equal(t, bcm(cfg.Pins.CS), mem.Load(7)&bcm(cfg.Pins.CS))
	assert.Nil(t, b.Close())
	assert.Equal(t, pruadc.ErrClosed, mem.Close())
}

func TestGPIOOpenError(t *testing.T) {
	oerr := errors.New("no gpiomem")
	defer board.SetOpenGPIO(func() (*pruadc.Mem, error) { return nil, oerr })()
	cfg := board.DefaultConfig()
	cfg.Backend = board.GPIO
	_, err := board.Open(cfg)
	assert.Equal(t, oerr, errors.Cause(err))
}
