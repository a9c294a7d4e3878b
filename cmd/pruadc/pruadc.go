// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// pruadc is a utility to acquire samples from an AD7172 driven by a PRU
// coprocessor.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	cfgflag "github.com/warthog618/config/pflag"
	"github.com/warthog618/pruadc/board"
)

var version = "undefined"

func init() {
	addBoardFlags(rootCmd.PersistentFlags())
}

// addBoardFlags adds the board settings to the flag set.
//
// The values are read through the config, so the flags are declared here
// only to be accepted by the command line parser and to document them.
func addBoardFlags(pf *pflag.FlagSet) {
	pf.StringP("config-file", "c", "", "config file, defaulting to pruadc.json if present")
	pf.String("backend", string(board.Remoteproc), "coprocessor backend (remoteproc, gpio or sim)")
	pf.Int("core", 0, "PRU core running the firmware")
	pf.String("firmware", board.DefaultFirmware, "firmware image loaded into the core")
	pf.Int("ramoffset", 0x80, "word offset of the mailbox in shared memory")
	pf.Int("retries", 0, "polls of the mailbox before a command times out")
	pf.Duration("timeout", 0, "time before a command times out")
	pf.Float64("vref", 4.096, "ADC reference voltage")
	pf.Duration("tclk", 0, "half period of the bus clock (gpio backend)")
	pf.Int("cs", 8, "chip select pin (gpio backend)")
	pf.Int("clk", 11, "clock pin (gpio backend)")
	pf.Int("mosi", 10, "MOSI pin (gpio backend)")
	pf.Int("miso", 9, "MISO pin (gpio backend)")
	pf.AddGoFlagSet(goflag.CommandLine)
}

var rootCmd = &cobra.Command{
	Use:   "pruadc",
	Short: "pruadc is a utility to acquire samples from an AD7172 via a PRU",
	Long: `pruadc drives an AD7172 ADC through a coprocessor that bit bashes the
SPI bus on behalf of the host.

Board settings may be provided by flag, by environment variable
(prefixed with PRUADC_), or by config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// keep glog quiet about flags parsed by cobra
		goflag.CommandLine.Parse(nil)
	},
	Version: version,
}

func main() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "pruadc %s: %s\n", cmd.Name(), err)
}

var defaultConfig = map[string]interface{}{
	"backend":     string(board.Remoteproc),
	"core":        0,
	"firmware":    board.DefaultFirmware,
	"ramoffset":   0x80,
	"retries":     0,
	"timeout":     "0s",
	"vref":        4.096,
	"tclk":        "2500ns",
	"cs":          8,
	"clk":         11,
	"mosi":        10,
	"miso":        9,
	"mqtt.broker": "",
	"mqtt.topic":  "pruadc",
}

// loadConfig returns the config with flags overriding the environment, which
// overrides the config file, which overrides the defaults.
func loadConfig() *config.Config {
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		cfgflag.New(cfgflag.WithFlags(
			[]cfgflag.Flag{{Short: 'c', Name: "config-file"}})),
		env.New(env.WithEnvPrefix("PRUADC_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "pruadc.json", json.NewDecoder()))
	return cfg.GetConfig("", config.WithMust)
}

// boardConfig maps the config onto the board.
func boardConfig(cfg *config.Config) board.Config {
	bc := board.DefaultConfig()
	bc.Backend = board.Backend(cfg.MustGet("backend").String())
	bc.Core = cfg.MustGet("core").Int()
	bc.Firmware = cfg.MustGet("firmware").String()
	bc.RAMOffset = cfg.MustGet("ramoffset").Int()
	if r := cfg.MustGet("retries").Int(); r > 0 {
		bc.Retries = r
	}
	bc.Timeout = cfg.MustGet("timeout").Duration()
	bc.Vref = cfg.MustGet("vref").Float()
	bc.Tclk = cfg.MustGet("tclk").Duration()
	bc.Pins = board.Pins{
		CS:   cfg.MustGet("cs").Int(),
		Clk:  cfg.MustGet("clk").Int(),
		MOSI: cfg.MustGet("mosi").Int(),
		MISO: cfg.MustGet("miso").Int(),
	}
	return bc
}

// openBoard opens the configured board.
func openBoard() (*board.Board, *config.Config, error) {
	cfg := loadConfig()
	b, err := board.Open(boardConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return b, cfg, nil
}
