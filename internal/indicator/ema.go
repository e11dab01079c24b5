package indicator

import (
	"github.com/moznion/go-optional"
)

// EMA calculates the Exponential Moving Average of the latest value in the
// series.
//
// When a previous EMA is supplied the standard recurrence is applied:
//
//	EMA = (latest - previous) * 2/(period+1) + previous
//
// Without a previous value the EMA seeds from SMA(series, period), which is
// None when the series is shorter than the period. Callers that want a true
// continuous EMA across runs must persist the returned value and feed it
// back as previous on the next day.
func EMA(series []float64, period int, previous optional.Option[float64]) optional.Option[float64] {
	if period <= 0 || len(series) == 0 {
		return none()
	}

	if previous.IsNone() {
		return SMA(series, period)
	}

	latest := series[len(series)-1]
	prev := previous.Unwrap()

	return some((latest-prev)*smoothingFactor(period) + prev)
}
