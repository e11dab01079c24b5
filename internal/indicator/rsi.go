package indicator

import (
	"github.com/moznion/go-optional"
)

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index over the last period deltas.
//
// Average gain and average loss both divide by the full period, counting
// flat days as zero. When the average loss is zero the RSI is exactly 100;
// there is no divide-by-zero case. Requires period+1 values (period deltas).
func RSI(series []float64, period int) optional.Option[float64] {
	if period <= 0 || len(series) < period+1 {
		return none()
	}

	changes := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		changes = append(changes, series[i]-series[i-1])
	}

	recent := lastN(changes, period)

	avgGain := 0.0
	avgLoss := 0.0

	for _, c := range recent {
		if c > 0 {
			avgGain += c
		} else if c < 0 {
			avgLoss += -c
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return some(100)
	}

	rs := avgGain / avgLoss

	return some(100 - (100 / (1 + rs)))
}
