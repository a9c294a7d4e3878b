// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/pruadc/ad7172"
)

func init() {
	readCmd.Flags().IntVarP(&readOpts.Count, "count", "n", 1, "number of samples in the burst")
	readCmd.Flags().IntVar(&readOpts.Channel, "channel", 0, "input channel (0 or 1)")
	readCmd.Flags().Float64VarP(&readOpts.Rate, "rate", "r", 0, "sample rate in SPS, leaving the filter unchanged if 0")
	readCmd.Flags().BoolVarP(&readOpts.Raw, "raw", "R", false, "display the volts without the sample index")
	readCmd.SetHelpTemplate(readCmd.HelpTemplate() + extendedReadHelp)
	rootCmd.AddCommand(readCmd)
}

var extendedReadHelp = `
Rates:
  31250, 15625, 10417, 5208, 2604, 1008, 504, 400.6, 200.3, 100.2,
  59.98 and 50 SPS are supported.

A count of 1 performs a single conversion, while larger counts perform a
burst of continuous conversions, up to 1024.
`

var (
	readCmd = &cobra.Command{
		Use:     "read",
		Short:   "Read a sample or burst of samples",
		Example: "  pruadc read -n 100 -r 1008",
		Args:    cobra.NoArgs,
		RunE:    read,
	}
	readOpts = struct {
		Count   int
		Channel int
		Rate    float64
		Raw     bool
	}{}
)

func read(cmd *cobra.Command, args []string) error {
	b, _, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	if err = setup(b.ADC, readOpts.Channel, readOpts.Rate); err != nil {
		return err
	}
	var vv []float64
	if readOpts.Count == 1 {
		v, err := b.ADC.ReadSingle()
		if err != nil {
			return err
		}
		vv = []float64{v}
	} else {
		vv, err = b.ADC.ReadMultiple(readOpts.Count)
		if err != nil {
			return err
		}
	}
	for i, v := range vv {
		if readOpts.Raw {
			fmt.Printf("%.6f\n", v)
		} else {
			fmt.Printf("%4d: %.6fV\n", i, v)
		}
	}
	return nil
}

// setup configures the ADC for acquisition on the channel at the rate.
func setup(adc *ad7172.ADC, channel int, rate float64) error {
	if err := adc.Configure(); err != nil {
		return err
	}
	if err := selectChannel(adc, channel); err != nil {
		return err
	}
	if rate == 0 {
		return nil
	}
	r, ok := ad7172.RateFromSPS(rate)
	if !ok {
		return errors.Errorf("unsupported rate %g", rate)
	}
	return adc.SetSampleRate(r)
}

func selectChannel(adc *ad7172.ADC, channel int) error {
	switch channel {
	case 0:
		return adc.SetChannel0()
	case 1:
		return adc.SetChannel1()
	default:
		return errors.Errorf("unknown channel %d", channel)
	}
}
