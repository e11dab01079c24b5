package indicator

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
)

// DefaultATRPeriod is the conventional ATR lookback.
const DefaultATRPeriod = 14

// ATR calculates the Average True Range: the simple average of the last
// period true ranges, where each true range is
//
//	max(high-low, |high-prevClose|, |low-prevClose|)
//
// Requires period+1 bars since each true range consumes the previous close.
func ATR(bars []types.Bar, period int) optional.Option[float64] {
	if period <= 0 || len(bars) < period+1 {
		return none()
	}

	trueRanges := make([]float64, 0, len(bars)-1)

	for i := 1; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trueRanges = append(trueRanges, tr)
	}

	return some(sum(lastN(trueRanges, period)) / float64(period))
}
