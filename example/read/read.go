// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"

	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/board"
)

// This example reads a single sample, followed by a burst of samples, from
// both channels of an AD7172 driven by the PRU firmware.
// The backend defaults to the simulator so the example can be run anywhere,
// but can be altered via configuration (env, flag or config file).
func main() {
	cfg := loadConfig()
	bc := board.DefaultConfig()
	bc.Backend = board.Backend(cfg.MustGet("backend").String())
	bc.Core = cfg.MustGet("core").Int()
	bc.Timeout = cfg.MustGet("timeout").Duration()
	b, err := board.Open(bc)
	if err != nil {
		panic(err)
	}
	defer b.Close()
	adc := b.ADC
	if err = adc.Configure(); err != nil {
		panic(err)
	}
	rate, ok := ad7172.RateFromSPS(cfg.MustGet("rate").Float())
	if !ok {
		panic(fmt.Sprintf("unsupported rate %s", cfg.MustGet("rate").String()))
	}
	if err = adc.SetSampleRate(rate); err != nil {
		panic(err)
	}
	n := cfg.MustGet("count").Int()
	for ch, set := range []func() error{adc.SetChannel0, adc.SetChannel1} {
		if err = set(); err != nil {
			panic(err)
		}
		v, err := adc.ReadSingle()
		if err != nil {
			panic(err)
		}
		fmt.Printf("ch%d=%.6fV\n", ch, v)
		vv, err := adc.ReadMultiple(n)
		if err != nil {
			panic(err)
		}
		fmt.Printf("ch%d %d samples at %s: %.6f\n", ch, n, rate, vv)
	}
}

func loadConfig() *config.Config {
	defaultConfig := map[string]interface{}{
		"backend": "sim",
		"core":    0,
		"timeout": "1s",
		"rate":    1008,
		"count":   8,
	}
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		pflag.New(pflag.WithFlags(
			[]pflag.Flag{{Short: 'c', Name: "config-file"}})),
		env.New(env.WithEnvPrefix("AD7172_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "ad7172.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}
