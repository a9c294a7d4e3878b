// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/warthog618/config"
	"github.com/warthog618/pruadc/ad7172"
	"github.com/warthog618/pruadc/publish"
)

func init() {
	streamCmd.Flags().IntVarP(&streamOpts.Count, "count", "n", 100, "number of samples in each burst")
	streamCmd.Flags().IntVarP(&streamOpts.Bursts, "bursts", "b", 0, "exit after n bursts")
	streamCmd.Flags().IntVar(&streamOpts.Channel, "channel", 0, "input channel (0 or 1)")
	streamCmd.Flags().Float64VarP(&streamOpts.Rate, "rate", "r", 0, "sample rate in SPS, leaving the filter unchanged if 0")
	streamCmd.Flags().DurationVarP(&streamOpts.Period, "period", "p", 0, "minimum time between bursts")
	streamCmd.Flags().String("mqtt-broker", "", "MQTT broker URL, such as mqtt://host:1883/prefix")
	streamCmd.Flags().String("mqtt-topic", "pruadc", "MQTT base topic")
	streamCmd.SetHelpTemplate(streamCmd.HelpTemplate() + extendedStreamHelp)
	rootCmd.AddCommand(streamCmd)
}

var extendedStreamHelp = `
Bursts are published to the <topic>/volts topic of the broker, if one is
configured, else written to standard output, as JSON.
`

var (
	streamCmd = &cobra.Command{
		Use:     "stream",
		Short:   "Stream bursts of samples",
		Example: "  pruadc stream -n 1000 -r 1008 --mqtt-broker mqtt://localhost:1883",
		Args:    cobra.NoArgs,
		RunE:    stream,
	}
	streamOpts = struct {
		Count   int
		Bursts  int
		Channel int
		Rate    float64
		Period  time.Duration
	}{}
)

type batchWriter interface {
	Publish(b publish.Batch) error
	Close() error
}

// stdoutWriter writes batches as JSON lines.
type stdoutWriter struct {
	enc *json.Encoder
	seq uint64
}

func (w *stdoutWriter) Publish(b publish.Batch) error {
	b.Seq = w.seq
	w.seq++
	return w.enc.Encode(b)
}

func (w *stdoutWriter) Close() error {
	return nil
}

func newBatchWriter(cfg *config.Config) (batchWriter, error) {
	broker := cfg.MustGet("mqtt.broker").String()
	if broker == "" {
		return &stdoutWriter{enc: json.NewEncoder(os.Stdout)}, nil
	}
	return publish.Dial(broker, cfg.MustGet("mqtt.topic").String())
}

func stream(cmd *cobra.Command, args []string) error {
	b, cfg, err := openBoard()
	if err != nil {
		return err
	}
	defer b.Close()
	if err = setup(b.ADC, streamOpts.Channel, streamOpts.Rate); err != nil {
		return err
	}
	w, err := newBatchWriter(cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	var rate float64
	if streamOpts.Rate != 0 {
		rate = streamOpts.Rate
	} else if v, err := b.ADC.ReadRegister(ad7172.FiltCon0); err == nil {
		rate = ad7172.Rate(v & 0x1f).SPS()
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	var tick <-chan time.Time
	if streamOpts.Period > 0 {
		t := time.NewTicker(streamOpts.Period)
		defer t.Stop()
		tick = t.C
	}
	for n := 0; streamOpts.Bursts == 0 || n < streamOpts.Bursts; n++ {
		start := time.Now()
		vv, err := b.ADC.ReadMultiple(streamOpts.Count)
		if err != nil {
			return err
		}
		err = w.Publish(publish.Batch{
			Time:    start,
			Channel: streamOpts.Channel,
			Rate:    rate,
			Volts:   vv,
		})
		if err != nil {
			logErr(cmd, err)
		}
		glog.V(1).Infof("burst %d: %d samples in %s", n, len(vv), time.Since(start))
		if tick == nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
	return nil
}
