// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Package mailbox provides the command channel shared by the host and the
// coprocessor.
//
// The mailbox is a fixed layout block of words, reused for every
// transaction:
//
//	0           command flag / completion status
//	1           tx byte count
//	2..         tx bytes, one per word
//	2+txcnt     rx byte count (single), or rx bytes per sample (continuous)
//	3+txcnt     sample count (continuous only)
//	following   rx words written by the coprocessor
//
// The host lays out the request and writes the command flag last.  The
// coprocessor marks the flag Busy while it executes and returns it to Idle
// only after all response words are written.
package mailbox

import (
	"fmt"

	"github.com/pkg/errors"
)

// Command is the value written into the flag word to request an operation.
type Command uint32

// Commands recognised by the dispatcher.
const (
	Nop Command = iota
	SelfTest
	Write
	WriteReadSingle
	WriteReadContinuous
	Reset
	Wait Command = 0xff
)

var commandNames = map[Command]string{
	Nop:                 "nop",
	SelfTest:            "self-test",
	Write:               "write",
	WriteReadSingle:     "writeread-single",
	WriteReadContinuous: "writeread-continuous",
	Reset:               "reset",
	Wait:                "wait",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("command(0x%02x)", uint32(c))
}

// Status values written into the flag word by the coprocessor.
const (
	Idle           uint32 = 0x00
	Busy           uint32 = 0xee
	SelfTestMarker uint32 = 0xff
)

// Layout of the mailbox.
const (
	// DefaultOffset is the word offset of the mailbox within the coprocessor
	// data RAM.
	DefaultOffset = 0x80

	FlagOffset    = 0
	TxCountOffset = 1
	TxOffset      = 2

	// MaxTxBytes is the size of the coprocessor tx scratch buffer.
	MaxTxBytes = 4

	// MaxRxBytes is the widest word the coprocessor can assemble.
	MaxRxBytes = 4
)

// Words is the shared memory backing a mailbox.
//
// Loads and stores of individual words must be atomic.
type Words interface {
	Len() int
	Load(off int) uint32
	Store(off int, v uint32)
}

// Mailbox is the command channel at a fixed offset within shared memory.
type Mailbox struct {
	w    Words
	base int
	size int
}

// New creates a Mailbox occupying the words from base to the end of w.
func New(w Words, base int) (*Mailbox, error) {
	size := w.Len() - base
	if base < 0 || size < TxOffset+MaxTxBytes+2 {
		return nil, errors.Wrapf(ErrOverflow, "mailbox at %d of %d words", base, w.Len())
	}
	return &Mailbox{w: w, base: base, size: size}, nil
}

// Len returns the number of words in the mailbox.
func (mb *Mailbox) Len() int {
	return mb.size
}

// Load returns the word at the offset within the mailbox.
func (mb *Mailbox) Load(off int) uint32 {
	return mb.w.Load(mb.base + off)
}

// Store writes the word at the offset within the mailbox.
func (mb *Mailbox) Store(off int, v uint32) {
	mb.w.Store(mb.base+off, v)
}

// Flag returns the current flag word.
func (mb *Mailbox) Flag() uint32 {
	return mb.Load(FlagOffset)
}

// SetFlag writes the flag word.
func (mb *Mailbox) SetFlag(v uint32) {
	mb.Store(FlagOffset, v)
}

// MaxSamples returns the largest continuous burst that fits in the mailbox
// following a request of txcnt bytes.
func (mb *Mailbox) MaxSamples(txcnt int) int {
	n := mb.size - (TxOffset + txcnt + 2)
	if n < 0 {
		return 0
	}
	return n
}

var (
	// ErrOverflow indicates a request that does not fit in the mailbox.
	ErrOverflow = errors.New("mailbox overflow")

	// ErrTxSize indicates a tx byte count outside 1..MaxTxBytes.
	ErrTxSize = errors.New("invalid tx byte count")

	// ErrRxSize indicates an rx byte count outside 1..MaxRxBytes.
	ErrRxSize = errors.New("invalid rx byte count")
)
