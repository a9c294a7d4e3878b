// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package board

import "github.com/warthog618/pruadc"

// SetOpenGPIO replaces the GPIO block opener and returns a function that
// restores it.
func SetOpenGPIO(f func() (*pruadc.Mem, error)) func() {
	old := openGPIO
	openGPIO = f
	return func() { openGPIO = old }
}
