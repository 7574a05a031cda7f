package game

import "math/big"

type Measure struct {
	Index  int      // Measure number as written in the chart
	Pulse  int64    // First pulse of the measure
	Length *big.Rat // Length relative to a 4/4 measure
}
