// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"github.com/spf13/cobra"
)

func init() {
	resetCmd.Flags().BoolVarP(&resetOpts.Configure, "configure", "C", false, "configure the ADC after the reset")
	rootCmd.AddCommand(resetCmd)
}

var (
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Reset the ADC serial interface and registers",
		Args:  cobra.NoArgs,
		RunE:  reset,
	}
	resetOpts = struct {
		Configure bool
	}{}
)

func reset(cmd *cobra.Command, args []string) error {
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	if resetOpts.Configure {
		// configuration starts with a reset
		return b.ADC.Configure()
	}
	return b.ADC.Reset()
}
