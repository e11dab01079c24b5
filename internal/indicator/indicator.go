// Package indicator implements the pure technical indicator library.
//
// Every function takes a finite ordered series (oldest first) and a period,
// and returns optional.None when the series is too short for the period.
// Short input is never an error and no function panics or produces NaN/Inf.
// Values are returned unrounded; rounding happens at the feature calculator
// boundary.
package indicator

import (
	"github.com/moznion/go-optional"
)

// lastN returns the trailing n elements of series. Callers must check the
// length first.
func lastN(series []float64, n int) []float64 {
	return series[len(series)-n:]
}

func sum(series []float64) float64 {
	total := 0.0
	for _, v := range series {
		total += v
	}

	return total
}

// smoothingFactor is the standard EMA multiplier 2/(period+1).
func smoothingFactor(period int) float64 {
	return 2.0 / (float64(period) + 1.0)
}

// some is shorthand for wrapping a computed value.
func some(v float64) optional.Option[float64] {
	return optional.Some(v)
}

func none() optional.Option[float64] {
	return optional.None[float64]()
}
