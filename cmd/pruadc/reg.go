// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/pruadc/ad7172"
)

func init() {
	regCmd.SetHelpTemplate(regCmd.HelpTemplate() + extendedRegHelp)
	rootCmd.AddCommand(regCmd)
}

var extendedRegHelp = `
Registers:
  Registers may be identified by name, such as filtcon0, or address.
`

var regCmd = &cobra.Command{
	Use:     "reg <register> [value]",
	Short:   "Read or write an ADC register",
	Example: "  pruadc reg filtcon0 0x6a",
	Args:    cobra.RangeArgs(1, 2),
	RunE:    reg,
}

func reg(cmd *cobra.Command, args []string) error {
	r, err := parseRegister(args[0])
	if err != nil {
		return err
	}
	var v uint32
	if len(args) > 1 {
		u, err := strconv.ParseUint(args[1], 0, 24)
		if err != nil {
			return errors.Errorf("can't parse value '%s'", args[1])
		}
		v = uint32(u)
	}
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	if len(args) > 1 {
		return b.ADC.WriteRegister(r, v)
	}
	v, err = b.ADC.ReadRegister(r)
	if err != nil {
		return err
	}
	printRegister(r, v)
	return nil
}

func printRegister(r ad7172.Register, v uint32) {
	fmt.Printf("%s: 0x%0*x\n", r, 2*r.Size(), v)
}

func parseRegister(arg string) (ad7172.Register, error) {
	if r, ok := ad7172.RegisterByName(strings.ToLower(arg)); ok {
		return r, nil
	}
	a, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, errors.Errorf("can't parse register '%s'", arg)
	}
	r := ad7172.Register(a)
	if !r.Valid() {
		return 0, errors.Errorf("unknown register '%s'", arg)
	}
	return r, nil
}

// registerNames returns the names of all registers, in address order.
func registerNames() []string {
	var rr []int
	for a := 0; a <= 0x3f; a++ {
		if ad7172.Register(a).Valid() {
			rr = append(rr, a)
		}
	}
	sort.Ints(rr)
	nn := make([]string, len(rr))
	for i, a := range rr {
		nn[i] = ad7172.Register(a).String()
	}
	return nn
}
