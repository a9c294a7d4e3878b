// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

// Test suite for mem module.
package pruadc_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/pruadc"
)

func TestNewMem(t *testing.T) {
	m := pruadc.NewMem(16)
	assert.Equal(t, 16, m.Len())
	for i := 0; i < m.Len(); i++ {
		assert.Zero(t, m.Load(i))
	}
	m.Store(3, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), m.Load(3))
	assert.Nil(t, m.Close())
}

func TestWindow(t *testing.T) {
	m := pruadc.NewMem(16)
	w, err := m.Window(4, 8)
	require.Nil(t, err)
	assert.Equal(t, 8, w.Len())
	w.Store(0, 0x12)
	assert.Equal(t, uint32(0x12), m.Load(4))
	m.Store(11, 0x34)
	assert.Equal(t, uint32(0x34), w.Load(7))
	assert.Panics(t, func() { w.Store(8, 1) })
}

func TestWindowOutOfRange(t *testing.T) {
	m := pruadc.NewMem(16)
	patterns := []struct {
		name string
		off  int
		n    int
	}{
		{"negative offset", -1, 4},
		{"negative length", 0, -4},
		{"overrun", 12, 5},
		{"beyond end", 17, 0},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			w, err := m.Window(p.off, p.n)
			assert.Nil(t, w)
			assert.Equal(t, pruadc.ErrOutOfRange, errors.Cause(err))
		})
	}
}

func TestCloseClosed(t *testing.T) {
	m := pruadc.NewMem(4)
	assert.Nil(t, m.Close())
	assert.Equal(t, pruadc.ErrClosed, m.Close())
}
