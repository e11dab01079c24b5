package indicator

import (
	"github.com/moznion/go-optional"
)

// Default MACD periods.
const (
	DefaultMACDFastPeriod   = 12
	DefaultMACDSlowPeriod   = 26
	DefaultMACDSignalPeriod = 9
)

// MACDState carries the previous-day EMA values the MACD needs to continue
// across single-shot calls. Without it every call would re-seed the EMAs from
// SMA and the signal line could never form.
type MACDState struct {
	FastEMA   optional.Option[float64]
	SlowEMA   optional.Option[float64]
	SignalEMA optional.Option[float64]
}

// MACDResult is the computed MACD line, signal line and histogram. Signal
// and histogram are None until a previous signal EMA exists, so the first
// computation for a symbol seeds the state and reports no signal line.
type MACDResult struct {
	MACD      optional.Option[float64]
	Signal    optional.Option[float64]
	Histogram optional.Option[float64]
}

// MACD calculates Moving Average Convergence Divergence as the difference of
// a fast and a slow EMA, plus a signal line smoothing the MACD series with
// its own EMA.
//
// This is the one stateful indicator in the library: prev threads the EMA
// values from the previous trading day, and the returned state must be
// persisted and passed back on the next call. A zero-value state is a valid
// first call.
func MACD(series []float64, fastPeriod, slowPeriod, signalPeriod int, prev MACDState) (MACDResult, MACDState) {
	empty := MACDResult{MACD: none(), Signal: none(), Histogram: none()}

	if len(series) < slowPeriod && prev.SlowEMA.IsNone() {
		return empty, prev
	}

	fastEMA := EMA(series, fastPeriod, prev.FastEMA)
	slowEMA := EMA(series, slowPeriod, prev.SlowEMA)

	next := MACDState{
		FastEMA:   fastEMA,
		SlowEMA:   slowEMA,
		SignalEMA: prev.SignalEMA,
	}

	if fastEMA.IsNone() || slowEMA.IsNone() {
		return empty, next
	}

	macd := fastEMA.Unwrap() - slowEMA.Unwrap()

	result := MACDResult{
		MACD:      some(macd),
		Signal:    none(),
		Histogram: none(),
	}

	if prev.SignalEMA.IsSome() {
		signal := (macd-prev.SignalEMA.Unwrap())*smoothingFactor(signalPeriod) + prev.SignalEMA.Unwrap()
		result.Signal = some(signal)
		result.Histogram = some(macd - signal)
		next.SignalEMA = some(signal)
	} else {
		// First observation: seed the signal EMA with the MACD value itself.
		next.SignalEMA = some(macd)
	}

	return result, next
}
