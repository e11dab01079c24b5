package indicator

import (
	"math"

	"github.com/moznion/go-optional"
)

// Default Bollinger Band parameters.
const (
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
)

// BollingerBands holds the three band values. All three are None when the
// series is shorter than the period.
type BollingerBands struct {
	Upper  optional.Option[float64]
	Middle optional.Option[float64]
	Lower  optional.Option[float64]
}

// Bollinger calculates Bollinger Bands: middle = SMA(period), upper/lower =
// middle +- k * population standard deviation over the same window.
func Bollinger(series []float64, period int, k float64) BollingerBands {
	empty := BollingerBands{Upper: none(), Middle: none(), Lower: none()}

	middle := SMA(series, period)
	if middle.IsNone() {
		return empty
	}

	mid := middle.Unwrap()
	window := lastN(series, period)

	variance := 0.0
	for _, v := range window {
		diff := v - mid
		variance += diff * diff
	}

	variance /= float64(period)
	stdDev := math.Sqrt(variance)

	return BollingerBands{
		Upper:  some(mid + k*stdDev),
		Middle: some(mid),
		Lower:  some(mid - k*stdDev),
	}
}
