// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(idCmd)
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Read the ID register of the ADC",
	Args:  cobra.NoArgs,
	RunE:  id,
}

func id(cmd *cobra.Command, args []string) error {
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	v, err := b.ADC.ID()
	if err != nil {
		return err
	}
	fmt.Printf("id: 0x%04x\n", v)
	return nil
}
