// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package mailbox

import (
	"github.com/pkg/errors"
)

// Request is a decoded mailbox request.
type Request struct {
	Command Command
	Tx      []byte
	// RxBytes is the number of bytes in each rx word.
	RxBytes int
	// Samples is the number of rx words requested.
	Samples int
	// RxOffset is the mailbox offset of the first rx word.
	RxOffset int
}

// PutWrite lays out a Write request.
//
// The flag word is not touched.
func (mb *Mailbox) PutWrite(tx []byte) error {
	if err := checkTx(tx); err != nil {
		return err
	}
	mb.putTx(tx)
	return nil
}

// PutWriteReadSingle lays out a WriteReadSingle request and returns the
// offset of the rx word.
//
// The rx word is cleared. The flag word is not touched.
func (mb *Mailbox) PutWriteReadSingle(tx []byte, rxBytes int) (int, error) {
	if err := checkTx(tx); err != nil {
		return 0, err
	}
	if err := checkRx(rxBytes); err != nil {
		return 0, err
	}
	off := mb.putTx(tx)
	mb.Store(off, uint32(rxBytes))
	off++
	mb.Store(off, 0)
	return off, nil
}

// PutWriteReadContinuous lays out a WriteReadContinuous request and returns
// the offset of the first rx word.
//
// The rx words are cleared. The flag word is not touched.
func (mb *Mailbox) PutWriteReadContinuous(tx []byte, rxBytes, samples int) (int, error) {
	if err := checkTx(tx); err != nil {
		return 0, err
	}
	if err := checkRx(rxBytes); err != nil {
		return 0, err
	}
	if max := mb.MaxSamples(len(tx)); samples < 1 || samples > max {
		return 0, errors.Wrapf(ErrOverflow, "%d samples of max %d", samples, max)
	}
	off := mb.putTx(tx)
	mb.Store(off, uint32(rxBytes))
	off++
	mb.Store(off, uint32(samples))
	off++
	for i := 0; i < samples; i++ {
		mb.Store(off+i, 0)
	}
	return off, nil
}

func (mb *Mailbox) putTx(tx []byte) int {
	mb.Store(TxCountOffset, uint32(len(tx)))
	off := TxOffset
	for _, b := range tx {
		mb.Store(off, uint32(b))
		off++
	}
	return off
}

// Decode reads the request for cmd from the mailbox.
//
// Counts are validated against the mailbox and coprocessor buffer sizes, as
// the words are written by the other side of the channel.
func (mb *Mailbox) Decode(cmd Command) (Request, error) {
	r := Request{Command: cmd}
	switch cmd {
	case Write, WriteReadSingle, WriteReadContinuous:
	default:
		return r, nil
	}
	txcnt := int(mb.Load(TxCountOffset))
	if txcnt < 1 || txcnt > MaxTxBytes {
		return r, errors.Wrapf(ErrTxSize, "%d", txcnt)
	}
	r.Tx = make([]byte, txcnt)
	off := TxOffset
	for i := range r.Tx {
		r.Tx[i] = byte(mb.Load(off))
		off++
	}
	if cmd == Write {
		return r, nil
	}
	r.RxBytes = int(mb.Load(off))
	off++
	if r.RxBytes < 1 || r.RxBytes > MaxRxBytes {
		return r, errors.Wrapf(ErrRxSize, "%d", r.RxBytes)
	}
	r.Samples = 1
	if cmd == WriteReadContinuous {
		r.Samples = int(mb.Load(off))
		off++
		if max := mb.MaxSamples(txcnt); r.Samples < 1 || r.Samples > max {
			return r, errors.Wrapf(ErrOverflow, "%d samples of max %d", r.Samples, max)
		}
	}
	r.RxOffset = off
	return r, nil
}

func checkTx(tx []byte) error {
	if len(tx) < 1 || len(tx) > MaxTxBytes {
		return errors.Wrapf(ErrTxSize, "%d", len(tx))
	}
	return nil
}

func checkRx(n int) error {
	if n < 1 || n > MaxRxBytes {
		return errors.Wrapf(ErrRxSize, "%d", n)
	}
	return nil
}
