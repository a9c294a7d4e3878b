// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/config"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/board"
	"github.com/warthog618/pruadc/driver"
)

func TestBoardConfig(t *testing.T) {
	m := map[string]interface{}{}
	for k, v := range defaultConfig {
		m[k] = v
	}
	m["backend"] = "sim"
	m["core"] = 1
	m["timeout"] = "2s"
	m["miso"] = 19
	cfg := config.New(dict.New(dict.WithMap(m))).GetConfig("", config.WithMust)
	bc := boardConfig(cfg)
	assert.Equal(t, board.Sim, bc.Backend)
	assert.Equal(t, 1, bc.Core)
	assert.Equal(t, board.DefaultFirmware, bc.Firmware)
	assert.Equal(t, 0x80, bc.RAMOffset)
	// zero retries leaves the driver default
	assert.Equal(t, driver.DefaultRetries, bc.Retries)
	assert.Equal(t, 2*time.Second, bc.Timeout)
	assert.Equal(t, 4.096, bc.Vref)
	assert.Equal(t, 2500*time.Nanosecond, bc.Tclk)
	assert.Equal(t, board.Pins{CS: 8, Clk: 11, MOSI: 10, MISO: 19}, bc.Pins)
}

func TestParseRegister(t *testing.T) {
	patterns := []struct {
		arg string
		reg ad7172.Register
		ok  bool
	}{
		{"filtcon0", ad7172.FiltCon0, true},
		{"FiltCon0", ad7172.FiltCon0, true},
		{"0x07", ad7172.ID, true},
		{"16", ad7172.Ch0, true},
		{"0x05", 0, false},
		{"0x100", 0, false},
		{"pigeon", 0, false},
	}
	for _, p := range patterns {
		r, err := parseRegister(p.arg)
		if p.ok {
			assert.Nil(t, err, p.arg)
			assert.Equal(t, p.reg, r, p.arg)
		} else {
			assert.NotNil(t, err, p.arg)
		}
	}
}

func TestRegisterNames(t *testing.T) {
	nn := registerNames()
	require.NotEmpty(t, nn)
	assert.Equal(t, "status", nn[0])
	assert.Equal(t, "gain3", nn[len(nn)-1])
	assert.Contains(t, nn, "filtcon0")
}

func openSim(t *testing.T, codes ...uint32) *board.Board {
	t.Helper()
	cfg := board.DefaultConfig()
	cfg.Backend = board.Sim
	cfg.Timeout = 5 * time.Second
	cfg.SimCodes = codes
	cfg.Fatal = func(err error) { t.Error(err) }
	b, err := board.Open(cfg)
	require.Nil(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSetup(t *testing.T) {
	b := openSim(t)
	require.Nil(t, setup(b.ADC, 1, 1008))
	assert.Equal(t, uint32(0x8043), b.Sim.Register(ad7172.Ch1))
	assert.Equal(t, uint32(0x0001), b.Sim.Register(ad7172.Ch0))
	assert.Equal(t, uint32(0x006a), b.Sim.Register(ad7172.FiltCon0))

	require.Nil(t, setup(b.ADC, 0, 0))
	assert.Equal(t, uint32(0x8001), b.Sim.Register(ad7172.Ch0))

	assert.NotNil(t, setup(b.ADC, 2, 0))
	assert.NotNil(t, setup(b.ADC, 0, 1000))
}
