// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build !linux
// +build !linux

package board

import (
	"github.com/warthog618/pruadc"
	"github.com/warthog618/pruadc/pruss"
)

var openGPIO = func() (*pruadc.Mem, error) {
	return nil, ErrUnsupported
}

func newRemoteproc() (pruss.Runtime, error) {
	return nil, ErrUnsupported
}
