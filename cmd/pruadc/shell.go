// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/board"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell [command]...",
	Short: "Interact with the ADC from a shell",
	Long: `Open the board and start an interactive shell, or run a single shell
command if one is provided.`,
	RunE: shell,
}

const boardKey = "board"

func shell(cmd *cobra.Command, args []string) error {
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	sh := newShell(b)
	if len(args) > 0 {
		return sh.Process(args...)
	}
	sh.Printf("pruadc %s\n", version)
	sh.Run()
	return nil
}

func newShell(b *board.Board) *ishell.Shell {
	sh := ishell.New()
	sh.Set(boardKey, b)
	sh.SetPrompt("pruadc> ")
	for _, c := range shellCmds {
		sh.AddCmd(c)
	}
	return sh
}

func boardFrom(c *ishell.Context) *board.Board {
	return c.Get(boardKey).(*board.Board)
}

var shellCmds = []*ishell.Cmd{
	{
		Name: "id",
		Help: "read the ID register",
		Func: func(c *ishell.Context) {
			v, err := boardFrom(c).ADC.ID()
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("id: 0x%04x\n", v)
		},
	},
	{
		Name: "configure",
		Help: "reset and configure the ADC",
		Func: func(c *ishell.Context) {
			if err := boardFrom(c).ADC.Configure(); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "reset",
		Help: "reset the ADC",
		Func: func(c *ishell.Context) {
			if err := boardFrom(c).ADC.Reset(); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name:     "channel",
		Help:     "select the input channel",
		LongHelp: "channel <0|1>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("channel required"))
				return
			}
			ch, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("can't parse channel '%s'", c.Args[0]))
				return
			}
			if err = selectChannel(boardFrom(c).ADC, ch); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name:     "rate",
		Help:     "set the sample rate",
		LongHelp: "rate <sps>" + extendedReadHelp,
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("rate required"))
				return
			}
			sps, err := strconv.ParseFloat(c.Args[0], 64)
			if err != nil {
				c.Err(fmt.Errorf("can't parse rate '%s'", c.Args[0]))
				return
			}
			r, ok := ad7172.RateFromSPS(sps)
			if !ok {
				c.Err(fmt.Errorf("unsupported rate %g", sps))
				return
			}
			if err = boardFrom(c).ADC.SetSampleRate(r); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name:     "read",
		Help:     "read a sample or burst of samples",
		LongHelp: "read [count]",
		Func: func(c *ishell.Context) {
			n := 1
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil {
					c.Err(fmt.Errorf("can't parse count '%s'", c.Args[0]))
					return
				}
			}
			adc := boardFrom(c).ADC
			if n == 1 {
				v, err := adc.ReadSingle()
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("%.6fV\n", v)
				return
			}
			vv, err := adc.ReadMultiple(n)
			if err != nil {
				c.Err(err)
				return
			}
			for i, v := range vv {
				c.Printf("%4d: %.6fV\n", i, v)
			}
		},
	},
	{
		Name:     "reg",
		Help:     "read or write a register",
		LongHelp: "reg <register> [value]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 || len(c.Args) > 2 {
				c.Err(fmt.Errorf("register required"))
				return
			}
			r, err := parseRegister(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			adc := boardFrom(c).ADC
			if len(c.Args) == 2 {
				v, err := strconv.ParseUint(c.Args[1], 0, 24)
				if err != nil {
					c.Err(fmt.Errorf("can't parse value '%s'", c.Args[1]))
					return
				}
				if err = adc.WriteRegister(r, uint32(v)); err != nil {
					c.Err(err)
				}
				return
			}
			v, err := adc.ReadRegister(r)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s: 0x%0*x\n", r, 2*r.Size(), v)
		},
	},
	{
		Name: "regs",
		Help: "dump all registers",
		Func: func(c *ishell.Context) {
			adc := boardFrom(c).ADC
			for _, name := range registerNames() {
				r, _ := parseRegister(name)
				v, err := adc.ReadRegister(r)
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("%-10s 0x%0*x\n", name, 2*r.Size(), v)
			}
		},
	},
	{
		Name: "selftest",
		Help: "test communication with the coprocessor",
		Func: func(c *ishell.Context) {
			polls, err := boardFrom(c).Driver.TestCommunication()
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("ok after %d polls\n", polls)
		},
	},
}
