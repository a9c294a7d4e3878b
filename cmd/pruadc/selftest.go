// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/pruadc/driver"
	"github.com/warthog618/pruadc/mailbox"
)

func init() {
	selftestCmd.Flags().BoolVarP(&selftestOpts.RAM, "ram", "m", false, "also test the mailbox RAM")
	rootCmd.AddCommand(selftestCmd)
}

var (
	selftestCmd = &cobra.Command{
		Use:   "selftest",
		Short: "Test communication with the coprocessor",
		Long: `Issue a self test command to the coprocessor and report the number of
polls of the mailbox before it completed.`,
		Args: cobra.NoArgs,
		RunE: selftest,
	}
	selftestOpts = struct {
		RAM bool
	}{}
)

var ramPatterns = []uint32{0x00000000, 0xffffffff, 0x55555555, 0xaaaaaaaa, 0x12345678}

func selftest(cmd *cobra.Command, args []string) error {
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	polls, err := b.Driver.TestCommunication()
	if err != nil {
		return err
	}
	fmt.Printf("communication: ok after %d polls\n", polls)
	if !selftestOpts.RAM {
		return nil
	}
	// the flag word belongs to the coprocessor
	off := mailbox.FlagOffset + 1
	for ; ; off++ {
		for _, p := range ramPatterns {
			err = b.Driver.TestRAM(off, p)
			if err != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if errors.Cause(err) != driver.ErrOffset {
		return err
	}
	fmt.Printf("ram: ok, %d words\n", off-mailbox.FlagOffset-1)
	return nil
}
