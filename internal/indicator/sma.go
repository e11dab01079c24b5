package indicator

import (
	"github.com/moznion/go-optional"
)

// SMA calculates the Simple Moving Average: the arithmetic mean of the last
// period values. Returns None when fewer than period values are available.
func SMA(series []float64, period int) optional.Option[float64] {
	if period <= 0 || len(series) < period {
		return none()
	}

	return some(sum(lastN(series, period)) / float64(period))
}
