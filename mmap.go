// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package pruadc

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// GPIOMemPath is the device providing the BCM GPIO register block.
	GPIOMemPath = "/dev/gpiomem"

	// DevMemPath is the device providing physical memory, such as the PRU
	// data RAM.
	DevMemPath = "/dev/mem"

	gpioMemLength = 4096
)

// Map memory maps length bytes of the device at path, starting from the
// physical base address, and returns it as a Mem.
//
// The base and length must be page aligned.
func Map(path string, base int64, length int) (*Mem, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mem8, err := unix.Mmap(
		int(file.Fd()),
		base,
		length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s@0x%08x", path, base)
	}
	if len(mem8) < 4 {
		unix.Munmap(mem8)
		return nil, errors.Wrapf(ErrOutOfRange, "mmap %s returned %d bytes", path, len(mem8))
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&mem8[0])), len(mem8)/4)
	return &Mem{
		words: words,
		unmap: func() error { return unix.Munmap(mem8) },
	}, nil
}

// OpenGPIO maps the GPIO register block from /dev/gpiomem.
func OpenGPIO() (*Mem, error) {
	return Map(GPIOMemPath, 0, gpioMemLength)
}
