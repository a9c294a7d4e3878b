// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

package ad7172

import "fmt"

// Rate is the output data rate code of a filter configuration register.
type Rate int

// Output data rates supported with the sinc5+sinc1 filter.
const (
	Rate31250 Rate = iota + 5
	Rate15625
	Rate10417
	Rate5208
	Rate2604
	Rate1008
	Rate504
	Rate400P6
	Rate200P3
	Rate100P2
	Rate59P98
	Rate50
)

// Codes above this are ignored by SetSampleRate.
//
// This is looser than the enumerated rates.
const maxRateCode = 0x16

var rateSPS = map[Rate]float64{
	Rate31250: 31250,
	Rate15625: 15625,
	Rate10417: 10417,
	Rate5208:  5208,
	Rate2604:  2604,
	Rate1008:  1008,
	Rate504:   504,
	Rate400P6: 400.6,
	Rate200P3: 200.3,
	Rate100P2: 100.2,
	Rate59P98: 59.98,
	Rate50:    50,
}

// SPS returns the nominal samples per second for the rate, or 0 if the code
// is not one of the enumerated rates.
func (r Rate) SPS() float64 {
	return rateSPS[r]
}

func (r Rate) String() string {
	if sps, ok := rateSPS[r]; ok {
		return fmt.Sprintf("%gSPS", sps)
	}
	return fmt.Sprintf("rate(%d)", int(r))
}

// RateFromSPS returns the enumerated rate with the given nominal samples per
// second.
func RateFromSPS(sps float64) (Rate, bool) {
	for r, s := range rateSPS {
		if s == sps {
			return r, true
		}
	}
	return 0, false
}
