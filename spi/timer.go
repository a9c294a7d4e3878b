// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package spi

import (
	"time"
)

// Phase identifies which delay within the bit sequencing is being waited.
type Phase int

const (
	// Settle is the delay between setting data-out and the rising clock edge.
	Settle Phase = iota
	// Latch is the delay between the rising clock edge and the next bit.
	Latch
	// ByteGap is the delay between bytes.
	ByteGap
	// SampleGap is the delay between samples in a continuous burst.
	SampleGap
)

// SampleGapBits is the length of the SampleGap in bit delays.
const SampleGapBits = 10

// Timer provides the delays of the bit period.
//
// Settle and Latch are the two halves of one clock period and must be the
// same fixed duration.
type Timer interface {
	Wait(p Phase)
}

// SleepTimer waits by sleeping for Tclk per bit delay.
type SleepTimer struct {
	// time between clock edges (i.e. half the cycle time)
	Tclk time.Duration
}

// Wait sleeps for the duration of the phase.
func (t SleepTimer) Wait(p Phase) {
	if p == SampleGap {
		time.Sleep(SampleGapBits * t.Tclk)
		return
	}
	time.Sleep(t.Tclk)
}

// SpinTimer waits by busy looping for Cycles iterations per bit delay.
//
// This is the cycle counted delay used where sleeping is too coarse.
type SpinTimer struct {
	Cycles int
}

var spinSink int

// Wait spins for the duration of the phase.
func (t SpinTimer) Wait(p Phase) {
	n := t.Cycles
	if p == SampleGap {
		n *= SampleGapBits
	}
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	spinSink = s
}

// NopTimer does not wait at all.
//
// It is intended for simulated buses whose timing is driven purely by the
// line transitions.
type NopTimer struct{}

// Wait returns immediately.
func (NopTimer) Wait(Phase) {}
