// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package pruadc

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Mem is a word addressable block of memory shared between the host and a
// coprocessor core.
//
// Individual word loads and stores are atomic, so a Mem may be accessed
// concurrently by the two sides of a flag based protocol without further
// locking. Read/modify/write sequences must be guarded by the caller.
type Mem struct {
	// The mu covers the mapping lifetime, not individual word accesses.
	mu    sync.Mutex
	words []uint32
	// non-nil for a mapped block
	unmap func() error
}

// NewMem creates a heap backed Mem of n words.
//
// This provides the shared memory for in-process cores and tests.
func NewMem(n int) *Mem {
	return &Mem{words: make([]uint32, n)}
}

// Len returns the number of words in the block.
func (m *Mem) Len() int {
	return len(m.words)
}

// Load returns the word at the offset.
func (m *Mem) Load(off int) uint32 {
	return atomic.LoadUint32(&m.words[off])
}

// Store writes the word at the offset.
func (m *Mem) Store(off int, v uint32) {
	atomic.StoreUint32(&m.words[off], v)
}

// Window returns a Mem covering n words starting at off.
//
// The window shares the underlying storage, and becomes invalid when the
// parent is closed.
func (m *Mem) Window(off, n int) (*Mem, error) {
	if off < 0 || n < 0 || off+n > len(m.words) {
		return nil, errors.Wrapf(ErrOutOfRange, "window [%d:%d] of %d words", off, off+n, len(m.words))
	}
	return &Mem{words: m.words[off : off+n : off+n]}, nil
}

// Close releases the block.
//
// For a mapped block this unmaps the underlying memory.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.words == nil {
		return ErrClosed
	}
	m.words = nil
	if m.unmap != nil {
		return m.unmap()
	}
	return nil
}

var (
	// ErrAlreadyOpen indicates the mem is already open.
	ErrAlreadyOpen = errors.New("already open")

	// ErrClosed indicates the mem has been closed.
	ErrClosed = errors.New("closed")

	// ErrOutOfRange indicates an offset or length beyond the end of the block.
	ErrOutOfRange = errors.New("out of range")
)
