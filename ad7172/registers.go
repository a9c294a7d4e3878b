// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package ad7172

import "fmt"

// Register is the address of an AD7172 register.
type Register uint8

// AD7172 registers.
const (
	Status    Register = 0x00
	ADCMode   Register = 0x01
	IFMode    Register = 0x02
	RegCheck  Register = 0x03
	Data      Register = 0x04
	GPIOCon   Register = 0x06
	ID        Register = 0x07
	Ch0       Register = 0x10
	Ch1       Register = 0x11
	Ch2       Register = 0x12
	Ch3       Register = 0x13
	SetupCon0 Register = 0x20
	SetupCon1 Register = 0x21
	SetupCon2 Register = 0x22
	SetupCon3 Register = 0x23
	FiltCon0  Register = 0x28
	FiltCon1  Register = 0x29
	FiltCon2  Register = 0x2a
	FiltCon3  Register = 0x2b
	Offset0   Register = 0x30
	Offset1   Register = 0x31
	Offset2   Register = 0x32
	Offset3   Register = 0x33
	Gain0     Register = 0x38
	Gain1     Register = 0x39
	Gain2     Register = 0x3a
	Gain3     Register = 0x3b
)

const (
	// read bit of the communications register
	readFlag = 0x40
	addrMask = 0x3f
)

var registerInfo = map[Register]struct {
	name string
	size int
}{
	Status:    {"status", 1},
	ADCMode:   {"adcmode", 2},
	IFMode:    {"ifmode", 2},
	RegCheck:  {"regcheck", 3},
	Data:      {"data", 3},
	GPIOCon:   {"gpiocon", 2},
	ID:        {"id", 2},
	Ch0:       {"ch0", 2},
	Ch1:       {"ch1", 2},
	Ch2:       {"ch2", 2},
	Ch3:       {"ch3", 2},
	SetupCon0: {"setupcon0", 2},
	SetupCon1: {"setupcon1", 2},
	SetupCon2: {"setupcon2", 2},
	SetupCon3: {"setupcon3", 2},
	FiltCon0:  {"filtcon0", 2},
	FiltCon1:  {"filtcon1", 2},
	FiltCon2:  {"filtcon2", 2},
	FiltCon3:  {"filtcon3", 2},
	Offset0:   {"offset0", 3},
	Offset1:   {"offset1", 3},
	Offset2:   {"offset2", 3},
	Offset3:   {"offset3", 3},
	Gain0:     {"gain0", 3},
	Gain1:     {"gain1", 3},
	Gain2:     {"gain2", 3},
	Gain3:     {"gain3", 3},
}

// Valid returns true if the register exists on the device.
func (r Register) Valid() bool {
	_, ok := registerInfo[r]
	return ok
}

// Size returns the width of the register in bytes, or 0 for an unknown
// register.
func (r Register) Size() int {
	return registerInfo[r].size
}

func (r Register) String() string {
	if i, ok := registerInfo[r]; ok {
		return i.name
	}
	return fmt.Sprintf("reg(0x%02x)", uint8(r))
}

// ReadCmd returns the communications register byte that reads r.
func (r Register) ReadCmd() Command {
	return Command(readFlag | uint8(r)&addrMask)
}

// WriteCmd returns the communications register byte that writes r.
func (r Register) WriteCmd() Command {
	return Command(uint8(r) & addrMask)
}

// RegisterByName returns the register with the given name.
func RegisterByName(name string) (Register, bool) {
	for r, i := range registerInfo {
		if i.name == name {
			return r, true
		}
	}
	return 0, false
}

// Command is a communications register byte, the first byte of every
// transaction with the device.
type Command uint8

// Commands used by the ADC.
const (
	ReadIDReg         Command = 0x47
	ReadDataReg       Command = 0x44
	ReadStatusReg     Command = 0x40
	WriteCh0Reg       Command = 0x10
	WriteCh1Reg       Command = 0x11
	WriteSetupCon0Reg Command = 0x20
	WriteADCModeReg   Command = 0x01
	WriteIFModeReg    Command = 0x02
	WriteGPIOConReg   Command = 0x06
	WriteFiltCon0Reg  Command = 0x28
)

// IsRead returns true if the command reads a register.
func (c Command) IsRead() bool {
	return c&readFlag != 0
}

// Register returns the register addressed by the command.
func (c Command) Register() Register {
	return Register(c & addrMask)
}

// Register payloads.
const (
	ch0Enable   = 0x8001 // +AIN0, -AIN1
	ch0Disable  = 0x0001
	ch1Enable   = 0x8043 // +AIN2, -AIN3
	ch1Disable  = 0x0043
	setupCon0   = 0x1300 // bipolar, reference buffers enabled
	ifMode      = 0x0000
	gpioCon     = 0x0000 // SYNC_N disabled
	modeCont    = 0x000c // continuous conversion, external crystal
	modeSingle  = 0x001c // single conversion, external crystal
	filtConBase = 0x0060
	rateMask    = 0x1f
)
