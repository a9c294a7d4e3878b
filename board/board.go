// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package board assembles the acquisition stack, from coprocessor runtime
// through to the ADC, for one of the supported backends.
package board

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/adcsim"
	"github.com/warthog618/pruadc/dispatch"
	"github.com/warthog618/pruadc/driver"
	"github.com/warthog618/pruadc/mailbox"
	"github.com/warthog618/pruadc/pruss"
	"github.com/warthog618/pruadc/spi"
)

// Backend identifies the coprocessor and bus implementation.
type Backend string

const (
	// Remoteproc runs the firmware on a PRU core.
	Remoteproc Backend = "remoteproc"

	// GPIO runs the dispatch loop on the host, bit bashing BCM GPIO pins.
	GPIO Backend = "gpio"

	// Sim runs the dispatch loop on the host against a simulated ADC.
	Sim Backend = "sim"
)

const (
	// DefaultFirmware is the PRU firmware image name.
	DefaultFirmware = "pruadc-fw"

	gpioImage = "pruadc-gpio"
	simImage  = "pruadc-sim"
)

// Pins are the GPIO pins driving the bus.
type Pins struct {
	CS   int
	Clk  int
	MOSI int
	MISO int
}

// Config describes the board.
type Config struct {
	Backend  Backend
	Core     int
	Firmware string
	// word offset of the mailbox within the core shared memory
	RAMOffset int
	Retries   int
	Timeout   time.Duration
	Vref      float64
	// half period of the bus clock for the GPIO backend
	Tclk time.Duration
	Pins Pins
	// conversion results returned by the Sim backend
	SimCodes []uint32
	// called on fatal errors, defaulting to exiting the process
	Fatal driver.FatalFunc
}

// DefaultConfig returns the configuration of the standard board.
func DefaultConfig() Config {
	return Config{
		Backend:   Remoteproc,
		Core:      pruss.PRU0,
		Firmware:  DefaultFirmware,
		RAMOffset: mailbox.DefaultOffset,
		Retries:   driver.DefaultRetries,
		Vref:      ad7172.DefaultVref,
		Tclk:      2500 * time.Nanosecond,
		Pins:      Pins{CS: 8, Clk: 11, MOSI: 10, MISO: 9},
	}
}

// Board is an opened acquisition stack.
type Board struct {
	ADC    *ad7172.ADC
	Driver *driver.Driver
	// Sim is the simulated device for the Sim backend, else nil.
	Sim *adcsim.Device

	rt   pruss.Runtime
	core int
	gpio *pruadc.Mem
}

// Open brings up the coprocessor and returns the assembled stack.
func Open(cfg Config) (*Board, error) {
	b := &Board{core: cfg.Core}
	image := cfg.Firmware
	switch cfg.Backend {
	case Sim:
		image = simImage
		dev := adcsim.New(adcsim.WithCodes(cfg.SimCodes...))
		bus := spi.New(dev.CS(), dev.Clk(), dev.DIn(), dev.DOut(), spi.WithTimer(spi.NopTimer{}))
		b.Sim = dev
		b.rt = pruss.NewLocal(pruss.WithFirmware(image, dispatch.Firmware(bus, cfg.RAMOffset)))
	case GPIO:
		image = gpioImage
		mem, err := openGPIO()
		if err != nil {
			return nil, errors.Wrap(err, "open gpio")
		}
		b.gpio = mem
		bus, err := gpioBus(mem, cfg.Pins, timer(cfg.Tclk))
		if err != nil {
			mem.Close()
			return nil, err
		}
		b.rt = pruss.NewLocal(pruss.WithFirmware(image, dispatch.Firmware(bus, cfg.RAMOffset)))
	case Remoteproc:
		rt, err := newRemoteproc()
		if err != nil {
			return nil, err
		}
		b.rt = rt
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", cfg.Backend)
	}
	mem, err := pruss.Start(b.rt, cfg.Core, image)
	if err != nil {
		b.release()
		return nil, err
	}
	// the host only ever sees the mailbox, not the rest of the core memory
	win, err := mem.Window(cfg.RAMOffset, mem.Len()-cfg.RAMOffset)
	if err != nil {
		b.release()
		return nil, err
	}
	mb, err := mailbox.New(win, 0)
	if err != nil {
		b.release()
		return nil, err
	}
	options := []driver.Option{driver.WithTimeout(cfg.Timeout)}
	if cfg.Retries > 0 {
		options = append(options, driver.WithRetries(cfg.Retries))
	}
	if cfg.Fatal != nil {
		options = append(options, driver.WithFatal(cfg.Fatal))
	}
	b.Driver = driver.New(mb, b.rt, cfg.Core, options...)
	vref := cfg.Vref
	if vref == 0 {
		vref = ad7172.DefaultVref
	}
	b.ADC = ad7172.New(b.Driver, ad7172.WithVref(vref), ad7172.WithRelease(closer{b}))
	glog.V(1).Infof("opened %s board on core %d", cfg.Backend, cfg.Core)
	return b, nil
}

// Close halts the coprocessor and releases the board resources.
func (b *Board) Close() error {
	return b.ADC.Close()
}

type closer struct {
	b *Board
}

func (c closer) Close() error {
	return c.b.release()
}

func (b *Board) release() error {
	var err error
	if b.Driver != nil {
		b.Driver.Close()
	}
	if rerr := b.rt.Reset(b.core); rerr != nil {
		err = rerr
	}
	if cerr := b.rt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if b.gpio != nil {
		b.gpio.Close()
	}
	return err
}

func timer(tclk time.Duration) spi.Timer {
	if tclk <= 0 {
		return spi.SpinTimer{Cycles: 20}
	}
	return spi.SleepTimer{Tclk: tclk}
}

// gpioBus creates an engine bit bashing the pins within the GPIO block.
func gpioBus(mem *pruadc.Mem, pins Pins, t spi.Timer) (*spi.Engine, error) {
	var lines [4]*pruadc.Pin
	for i, p := range []int{pins.CS, pins.Clk, pins.MOSI, pins.MISO} {
		pin, err := pruadc.NewPin(mem, p)
		if err != nil {
			return nil, errors.Wrapf(err, "pin %d", p)
		}
		lines[i] = pin
	}
	lines[0].Output()
	lines[1].Output()
	lines[2].Output()
	lines[3].Input()
	return spi.New(lines[0], lines[1], lines[2], lines[3], spi.WithTimer(t)), nil
}

var (
	// ErrUnknownBackend indicates a backend not supported by the board.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnsupported indicates a backend unavailable on this platform.
	ErrUnsupported = errors.New("unsupported on this platform")
)
