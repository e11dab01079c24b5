// Package signal scores a feature snapshot into a discrete trading signal
// with a confidence and an ordered, human-readable reason trail.
package signal

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
)

// evaluation accumulates the signed score, reasons and raw observations
// while the rule table runs.
type evaluation struct {
	current  types.FeatureSnapshot
	previous optional.Option[types.FeatureSnapshot]

	score   int
	reasons []string
	details types.ChangeDetails
}

func (e *evaluation) add(delta int, reason string) {
	e.score += delta
	e.reasons = append(e.reasons, reason)
}

// scoringRule is one entry of the rule table. Rules run in table order and
// the reason order they produce is part of the observable contract.
type scoringRule struct {
	name  string
	apply func(e *evaluation)
}

// scoringRules is the complete additive heuristic, in evaluation order:
// RSI level, RSI momentum, price vs SMA20, SMA cross, Bollinger position,
// volume, day-over-day price change, MACD histogram. A rule whose inputs are
// absent contributes nothing.
var scoringRules = []scoringRule{
	{name: "rsi_level", apply: evalRSILevel},
	{name: "rsi_momentum", apply: evalRSIMomentum},
	{name: "sma_distance", apply: evalSMADistance},
	{name: "sma_cross", apply: evalSMACross},
	{name: "bollinger", apply: evalBollinger},
	{name: "volume", apply: evalVolume},
	{name: "price_change", apply: evalPriceChange},
	{name: "macd", apply: evalMACD},
}

// Scorer converts feature snapshots into signal decisions. It is stateless:
// the previous day's snapshot is an explicit input, not remembered state.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates the rule table over the current snapshot (and the previous
// day's, when available) and maps the accumulated score to a signal.
// An all-null snapshot triggers no rules and lands on HOLD at confidence 70.
func (s *Scorer) Score(current types.FeatureSnapshot, previous optional.Option[types.FeatureSnapshot]) types.SignalDecision {
	e := &evaluation{
		current:  current,
		previous: previous,
		reasons:  []string{},
		details: types.ChangeDetails{
			RSIChange:   optional.None[float64](),
			PriceChange: optional.None[float64](),
			SMABreakout: optional.None[types.SMABreakout](),
			BBPosition:  optional.None[types.BBPosition](),
		},
	}

	for _, rule := range scoringRules {
		rule.apply(e)
	}

	signalType, confidence := mapScore(e.score)

	return types.SignalDecision{
		Symbol:        current.Symbol,
		Market:        current.Market,
		Date:          current.Date,
		Signal:        signalType,
		Confidence:    confidence,
		Reasons:       e.reasons,
		ChangeDetails: e.details,
	}
}

// mapScore converts the final signed score to (signal, confidence).
// Thresholds are checked top-down; first match wins. The min/max bounds in
// the confidence formulas make a separate clamp unnecessary.
func mapScore(score int) (types.SignalType, int) {
	abs := math.Abs(float64(score))

	switch {
	case score >= 40:
		return types.SignalStrongBuy, roundConfidence(math.Min(90, 50+float64(score)))
	case score >= 20:
		return types.SignalBuy, roundConfidence(math.Min(80, 50+float64(score)*0.8))
	case score <= -40:
		return types.SignalStrongSell, roundConfidence(math.Min(90, 50+abs))
	case score <= -20:
		return types.SignalSell, roundConfidence(math.Min(80, 50+abs*0.8))
	default:
		return types.SignalHold, roundConfidence(math.Max(40, 70-abs*2))
	}
}

func roundConfidence(v float64) int {
	return int(math.Round(v))
}

func evalRSILevel(e *evaluation) {
	if e.current.RSI14.IsNone() {
		return
	}

	rsi := e.current.RSI14.Unwrap()

	switch {
	case rsi > 70:
		e.add(-15, "RSI overbought (>70)")
	case rsi < 30:
		e.add(20, "RSI oversold (<30)")
	case rsi > 60:
		e.add(10, "RSI strong (>60)")
	case rsi < 40:
		e.add(-10, "RSI weak (<40)")
	}
}

func evalRSIMomentum(e *evaluation) {
	if e.current.RSI14.IsNone() || e.previous.IsNone() {
		return
	}

	prev := e.previous.Unwrap()
	if prev.RSI14.IsNone() {
		return
	}

	change := e.current.RSI14.Unwrap() - prev.RSI14.Unwrap()
	e.details.RSIChange = optional.Some(change)

	if change > 10 {
		e.add(10, fmt.Sprintf("RSI surge (+%.1f)", change))
	} else if change < -10 {
		e.add(-10, fmt.Sprintf("RSI drop (%.1f)", change))
	}
}

func evalSMADistance(e *evaluation) {
	if e.current.ClosePrice == 0 || e.current.SMA20.IsNone() || e.current.SMA50.IsNone() {
		return
	}

	price := e.current.ClosePrice
	sma20 := e.current.SMA20.Unwrap()

	if price > sma20 {
		distancePct := ((price - sma20) / sma20) * 100
		if distancePct > 5 {
			e.add(10, fmt.Sprintf("Price well above SMA20 (+%.1f%%)", distancePct))
		} else {
			e.add(5, "Price above SMA20")
		}

		e.details.SMABreakout = optional.Some(types.BreakoutAboveSMA20)
	} else {
		distancePct := ((sma20 - price) / sma20) * 100
		if distancePct > 5 {
			e.add(-10, fmt.Sprintf("Price well below SMA20 (-%.1f%%)", distancePct))
		} else {
			e.add(-5, "Price below SMA20")
		}

		e.details.SMABreakout = optional.Some(types.BreakoutBelowSMA20)
	}
}

func evalSMACross(e *evaluation) {
	if e.current.ClosePrice == 0 || e.current.SMA20.IsNone() || e.current.SMA50.IsNone() {
		return
	}

	sma20 := e.current.SMA20.Unwrap()
	sma50 := e.current.SMA50.Unwrap()

	if sma20 > sma50 {
		crossPct := ((sma20 - sma50) / sma50) * 100
		if crossPct > 2 {
			e.add(15, "Golden Cross confirmed (SMA20 > SMA50)")
		}
	} else {
		crossPct := ((sma50 - sma20) / sma50) * 100
		if crossPct > 2 {
			e.add(-15, "Death Cross confirmed (SMA20 < SMA50)")
		}
	}
}

func evalBollinger(e *evaluation) {
	if e.current.ClosePrice == 0 ||
		e.current.BBUpper.IsNone() || e.current.BBMiddle.IsNone() || e.current.BBLower.IsNone() {
		return
	}

	price := e.current.ClosePrice

	switch {
	case price < e.current.BBLower.Unwrap():
		e.add(15, "Price below lower Bollinger Band")
		e.details.BBPosition = optional.Some(types.BBBelowLower)
	case price > e.current.BBUpper.Unwrap():
		e.add(-10, "Price above upper Bollinger Band")
		e.details.BBPosition = optional.Some(types.BBAboveUpper)
	case price > e.current.BBMiddle.Unwrap():
		e.details.BBPosition = optional.Some(types.BBAboveMiddle)
	default:
		e.details.BBPosition = optional.Some(types.BBBelowMiddle)
	}
}

func evalVolume(e *evaluation) {
	if e.current.VolumeRatio.IsNone() {
		return
	}

	ratio := e.current.VolumeRatio.Unwrap()

	if ratio > 2 {
		e.add(10, fmt.Sprintf("High volume spike (%.1fx avg)", ratio))
		e.details.VolumeSpike = true
	} else if ratio > 1.5 {
		e.add(5, fmt.Sprintf("Elevated volume (%.1fx avg)", ratio))
	}
}

func evalPriceChange(e *evaluation) {
	if e.previous.IsNone() {
		return
	}

	prev := e.previous.Unwrap()
	if prev.ClosePrice == 0 || e.current.ClosePrice == 0 {
		return
	}

	change := ((e.current.ClosePrice - prev.ClosePrice) / prev.ClosePrice) * 100
	e.details.PriceChange = optional.Some(change)

	if change > 5 {
		e.add(10, fmt.Sprintf("Strong price gain (+%.1f%%)", change))
	} else if change < -5 {
		e.add(-15, fmt.Sprintf("Sharp price drop (%.1f%%)", change))
	}
}

func evalMACD(e *evaluation) {
	if e.current.MACD.IsNone() || e.current.MACDHistogram.IsNone() {
		return
	}

	if e.current.MACDHistogram.Unwrap() > 0 {
		e.add(5, "MACD histogram positive")
	} else {
		e.add(-5, "MACD histogram negative")
	}
}
