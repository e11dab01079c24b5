// Package features turns a symbol's bar history into one immutable
// FeatureSnapshot per trading day.
package features

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/indicator"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/internal/version"
)

// LookbackDays is the calendar-day window of bars the calculator expects the
// caller to supply. 300 calendar days comfortably covers the 200 trading
// days the SMA200 needs.
const LookbackDays = 300

// Input is one feature calculation request. Bars must be ascending by date
// and end at (or before) Date; the calculator never fetches data itself.
// PrevState threads the previous trading day's EMA state so the MACD signal
// line survives across pipeline runs.
type Input struct {
	Symbol    string
	Market    types.Market
	Date      time.Time
	Bars      []types.Bar
	PrevState optional.Option[types.EMAState]
}

// Calculator computes feature snapshots. It is stateless and safe for
// concurrent use across distinct (symbol, market, date) keys.
type Calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate produces the feature snapshot for in.Date plus the advanced EMA
// state. Zero bars yield an all-null snapshot, not an error: "no data" is a
// degenerate result. The computation is deterministic, so recomputing with
// the same input overwrites a stored snapshot with identical values.
func (c *Calculator) Calculate(in Input) (types.FeatureSnapshot, types.EMAState) {
	snapshot := types.FeatureSnapshot{
		Symbol:        in.Symbol,
		Market:        in.Market,
		Date:          in.Date,
		SMA20:         optional.None[float64](),
		SMA50:         optional.None[float64](),
		SMA200:        optional.None[float64](),
		EMA12:         optional.None[float64](),
		EMA26:         optional.None[float64](),
		RSI14:         optional.None[float64](),
		MACD:          optional.None[float64](),
		MACDSignal:    optional.None[float64](),
		MACDHistogram: optional.None[float64](),
		BBUpper:       optional.None[float64](),
		BBMiddle:      optional.None[float64](),
		BBLower:       optional.None[float64](),
		ATR14:         optional.None[float64](),
		VolumeSMA20:   optional.None[float64](),
		VolumeRatio:   optional.None[float64](),
		EngineVersion: version.GetVersion(),
	}

	state := types.EMAState{
		Symbol:    in.Symbol,
		Market:    in.Market,
		Date:      in.Date,
		FastEMA:   optional.None[float64](),
		SlowEMA:   optional.None[float64](),
		SignalEMA: optional.None[float64](),
	}

	if len(in.Bars) == 0 {
		return snapshot, state
	}

	closes := make([]float64, len(in.Bars))
	volumes := make([]float64, len(in.Bars))

	for i, bar := range in.Bars {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	latest := in.Bars[len(in.Bars)-1]
	snapshot.ClosePrice = latest.Close
	snapshot.Volume = latest.Volume

	snapshot.SMA20 = round2(indicator.SMA(closes, 20))
	snapshot.SMA50 = round2(indicator.SMA(closes, 50))
	snapshot.SMA200 = round2(indicator.SMA(closes, 200))
	snapshot.EMA12 = round2(indicator.EMA(closes, 12, prevFast(in.PrevState)))
	snapshot.EMA26 = round2(indicator.EMA(closes, 26, prevSlow(in.PrevState)))

	snapshot.RSI14 = round2(indicator.RSI(closes, indicator.DefaultRSIPeriod))

	macd, macdState := indicator.MACD(
		closes,
		indicator.DefaultMACDFastPeriod,
		indicator.DefaultMACDSlowPeriod,
		indicator.DefaultMACDSignalPeriod,
		prevMACDState(in.PrevState),
	)
	snapshot.MACD = round2(macd.MACD)
	snapshot.MACDSignal = round2(macd.Signal)
	snapshot.MACDHistogram = round2(macd.Histogram)
	state.FastEMA = macdState.FastEMA
	state.SlowEMA = macdState.SlowEMA
	state.SignalEMA = macdState.SignalEMA

	bands := indicator.Bollinger(closes, indicator.DefaultBollingerPeriod, indicator.DefaultBollingerK)
	snapshot.BBUpper = round2(bands.Upper)
	snapshot.BBMiddle = round2(bands.Middle)
	snapshot.BBLower = round2(bands.Lower)

	snapshot.ATR14 = round2(indicator.ATR(in.Bars, indicator.DefaultATRPeriod))

	volumeSMA := indicator.SMA(volumes, 20)
	snapshot.VolumeSMA20 = roundWhole(volumeSMA)
	snapshot.VolumeRatio = round2(volumeRatio(latest.Volume, volumeSMA))

	return snapshot, state
}

// volumeRatio is current volume over the 20-day volume SMA, None when the
// SMA is unavailable or zero.
func volumeRatio(currentVolume float64, volumeSMA optional.Option[float64]) optional.Option[float64] {
	if volumeSMA.IsNone() || volumeSMA.Unwrap() == 0 {
		return optional.None[float64]()
	}

	return optional.Some(currentVolume / volumeSMA.Unwrap())
}

// round2 rounds an optional value to 2 decimal places.
func round2(o optional.Option[float64]) optional.Option[float64] {
	if o.IsNone() {
		return o
	}

	return optional.Some(math.Round(o.Unwrap()*100) / 100)
}

// roundWhole rounds an optional value to the nearest integer. Used for
// volume-based figures.
func roundWhole(o optional.Option[float64]) optional.Option[float64] {
	if o.IsNone() {
		return o
	}

	return optional.Some(math.Round(o.Unwrap()))
}

func prevFast(state optional.Option[types.EMAState]) optional.Option[float64] {
	if state.IsNone() {
		return optional.None[float64]()
	}

	return state.Unwrap().FastEMA
}

func prevSlow(state optional.Option[types.EMAState]) optional.Option[float64] {
	if state.IsNone() {
		return optional.None[float64]()
	}

	return state.Unwrap().SlowEMA
}

func prevMACDState(state optional.Option[types.EMAState]) indicator.MACDState {
	if state.IsNone() {
		return indicator.MACDState{
			FastEMA:   optional.None[float64](),
			SlowEMA:   optional.None[float64](),
			SignalEMA: optional.None[float64](),
		}
	}

	s := state.Unwrap()

	return indicator.MACDState{
		FastEMA:   s.FastEMA,
		SlowEMA:   s.SlowEMA,
		SignalEMA: s.SignalEMA,
	}
}
