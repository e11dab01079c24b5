// Package deepdive assembles descriptive reports for high-conviction
// signals. The narration is templated text keyed on the same numeric
// thresholds the scorer uses; it performs no new numeric analysis.
package deepdive

import (
	"fmt"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
)

const insufficientData = "INSUFFICIENT_DATA"

// HistoryDays is the feature window a report is narrated from.
const HistoryDays = 30

// Narrator generates deep-dive reports. Stateless.
type Narrator struct{}

// NewNarrator creates a Narrator.
func NewNarrator() *Narrator {
	return &Narrator{}
}

// Generate builds the report for a flagged decision from the last 30 days
// of feature snapshots (ascending by date; the last entry is the decision's
// date). Only STRONG_BUY and STRONG_SELL decisions are eligible.
func (n *Narrator) Generate(decision types.SignalDecision, history []types.FeatureSnapshot) (types.DeepDiveReport, error) {
	if !decision.Signal.IsStrong() {
		return types.DeepDiveReport{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"deep dive requires a STRONG_BUY or STRONG_SELL decision, got %s", decision.Signal)
	}

	if len(history) == 0 {
		return types.DeepDiveReport{}, errors.Newf(errors.ErrCodeSnapshotMissing,
			"no features found for %s on %s", decision.Symbol, decision.Date.Format("2006-01-02"))
	}

	current := history[len(history)-1]

	trend := analyzeTrend(current)
	momentum := analyzeMomentum(current)
	volatility := analyzeVolatility(current)
	volume := analyzeVolume(current)
	risk := assessRisk(current, decision.Confidence)
	recommendations := buildRecommendations(decision.Signal, momentum, trend, risk)
	summary := buildSummary(decision, trend, momentum)

	return types.DeepDiveReport{
		Symbol:     decision.Symbol,
		Market:     decision.Market,
		Date:       decision.Date,
		Signal:     decision.Signal,
		Confidence: decision.Confidence,
		Summary:    summary,
		TechnicalAnalysis: types.TechnicalAnalysis{
			Trend:      trend,
			Momentum:   momentum,
			Volatility: volatility,
			Volume:     volume,
		},
		KeyMetrics: types.KeyMetrics{
			CurrentPrice: current.ClosePrice,
			SMA20:        current.SMA20,
			SMA50:        current.SMA50,
			SMA200:       current.SMA200,
			RSI:          current.RSI14,
			ATR:          current.ATR14,
			VolumeRatio:  current.VolumeRatio,
		},
		RiskAssessment:       risk,
		Recommendations:      recommendations,
		Reasons:              decision.Reasons,
		HistoricalDataPoints: len(history),
		BBPosition:           bollingerPosition(current),
	}, nil
}

// analyzeTrend classifies the SMA alignment of price/SMA20/SMA50/SMA200.
func analyzeTrend(current types.FeatureSnapshot) string {
	if current.SMA20.IsNone() || current.SMA50.IsNone() {
		return insufficientData
	}

	price := current.ClosePrice
	sma20 := current.SMA20.Unwrap()
	sma50 := current.SMA50.Unwrap()

	switch {
	case price > sma20 && sma20 > sma50:
		if current.SMA200.IsSome() && sma50 > current.SMA200.Unwrap() {
			return "STRONG_UPTREND (all SMAs aligned)"
		}

		return "UPTREND (price > SMA20 > SMA50)"
	case price < sma20 && sma20 < sma50:
		if current.SMA200.IsSome() && sma50 < current.SMA200.Unwrap() {
			return "STRONG_DOWNTREND (all SMAs aligned)"
		}

		return "DOWNTREND (price < SMA20 < SMA50)"
	default:
		return "MIXED (SMAs not aligned)"
	}
}

// analyzeMomentum bands the RSI.
func analyzeMomentum(current types.FeatureSnapshot) string {
	if current.RSI14.IsNone() {
		return insufficientData
	}

	rsi := current.RSI14.Unwrap()

	switch {
	case rsi > 70:
		return "OVERBOUGHT (RSI > 70) - potential pullback"
	case rsi > 60:
		return "STRONG (RSI > 60) - bullish momentum"
	case rsi < 30:
		return "OVERSOLD (RSI < 30) - potential bounce"
	case rsi < 40:
		return "WEAK (RSI < 40) - bearish momentum"
	default:
		return "NEUTRAL (RSI 40-60)"
	}
}

// analyzeVolatility bands ATR as a percentage of price at 1.5% and 3%.
func analyzeVolatility(current types.FeatureSnapshot) string {
	if current.ATR14.IsNone() || current.ClosePrice == 0 {
		return insufficientData
	}

	atrPercent := (current.ATR14.Unwrap() / current.ClosePrice) * 100

	switch {
	case atrPercent > 3:
		return fmt.Sprintf("HIGH (ATR %.1f%% of price) - significant daily swings", atrPercent)
	case atrPercent > 1.5:
		return fmt.Sprintf("MODERATE (ATR %.1f%% of price)", atrPercent)
	default:
		return fmt.Sprintf("LOW (ATR %.1f%% of price) - stable price action", atrPercent)
	}
}

// analyzeVolume bands the volume ratio at 0.8, 1.5 and 2.
func analyzeVolume(current types.FeatureSnapshot) string {
	if current.VolumeRatio.IsNone() {
		return insufficientData
	}

	ratio := current.VolumeRatio.Unwrap()

	switch {
	case ratio > 2:
		return fmt.Sprintf("HIGH SPIKE (%.1fx average) - strong interest", ratio)
	case ratio > 1.5:
		return fmt.Sprintf("ELEVATED (%.1fx average) - increased activity", ratio)
	case ratio > 0.8:
		return fmt.Sprintf("NORMAL (%.1fx average)", ratio)
	default:
		return fmt.Sprintf("LOW (%.1fx average) - reduced interest", ratio)
	}
}

// assessRisk sums risk points over volatility, RSI extremes, confidence and
// volume, mapping the total to LOW (<2), MEDIUM (2-3) or HIGH (>=4).
func assessRisk(current types.FeatureSnapshot, confidence int) types.RiskAssessment {
	factors := []string{}
	riskScore := 0

	if current.ATR14.IsSome() && current.ClosePrice != 0 {
		atrPercent := (current.ATR14.Unwrap() / current.ClosePrice) * 100
		if atrPercent > 3 {
			factors = append(factors, "High volatility (ATR > 3% of price)")
			riskScore += 2
		} else if atrPercent > 1.5 {
			factors = append(factors, "Moderate volatility")
			riskScore++
		}
	}

	if current.RSI14.IsSome() {
		rsi := current.RSI14.Unwrap()
		if rsi > 70 {
			factors = append(factors, "Overbought conditions (RSI > 70)")
			riskScore++
		} else if rsi < 30 {
			factors = append(factors, "Oversold conditions (RSI < 30)")
			riskScore++
		}
	}

	if confidence < 60 {
		factors = append(factors, "Low signal confidence (<60%)")
		riskScore++
	}

	if current.VolumeRatio.IsSome() && current.VolumeRatio.Unwrap() < 0.5 {
		factors = append(factors, "Low volume (< 0.5x average)")
		riskScore++
	}

	level := types.RiskLow

	switch {
	case riskScore >= 4:
		level = types.RiskHigh
	case riskScore >= 2:
		level = types.RiskMedium
	}

	if len(factors) == 0 {
		factors = append(factors, "No significant risk factors identified")
	}

	return types.RiskAssessment{Level: level, Factors: factors}
}

// buildRecommendations produces the fixed templated guidance keyed on
// signal type, momentum band, risk level and trend alignment.
func buildRecommendations(signal types.SignalType, momentum, trend string, risk types.RiskAssessment) []string {
	recommendations := []string{}

	if signal == types.SignalStrongBuy {
		recommendations = append(recommendations, "STRONG BUY: Consider entering or adding to position")
		if risk.Level == types.RiskHigh {
			recommendations = append(recommendations, "Use smaller position size due to high risk")
		}
	} else if signal == types.SignalStrongSell {
		recommendations = append(recommendations, "STRONG SELL: Consider exiting position or avoiding entry")
	}

	if signal.IsBuySide() {
		if strings.Contains(momentum, "OVERBOUGHT") {
			recommendations = append(recommendations, "Wait for pullback before entering (overbought conditions)")
		} else if strings.Contains(momentum, "OVERSOLD") {
			recommendations = append(recommendations, "Good entry opportunity (oversold conditions)")
		}
	}

	switch risk.Level {
	case types.RiskHigh:
		recommendations = append(recommendations,
			"Implement tight stop-loss due to high volatility",
			"Consider using smaller position size")
	case types.RiskMedium:
		recommendations = append(recommendations, "Standard stop-loss recommended")
	case types.RiskLow:
	}

	if strings.Contains(trend, "STRONG_UPTREND") && signal.IsBuySide() {
		recommendations = append(recommendations, "Signal aligned with strong uptrend - high conviction")
	} else if strings.Contains(trend, "DOWNTREND") && signal.IsBuySide() {
		recommendations = append(recommendations, "CAUTION: Buy signal against downtrend - counter-trend trade")
	}

	recommendations = append(recommendations,
		"Monitor RSI and volume for confirmation",
		"Review position daily for changes in technical setup")

	return recommendations
}

func buildSummary(decision types.SignalDecision, trend, momentum string) string {
	parts := []string{
		fmt.Sprintf("%s generated a %s signal with %d%% confidence.", decision.Symbol, decision.Signal, decision.Confidence),
		fmt.Sprintf("The stock is in a %s.", trend),
		fmt.Sprintf("Momentum is %s.", momentum),
	}

	if len(decision.Reasons) > 0 {
		top := decision.Reasons
		if len(top) > 3 {
			top = top[:3]
		}

		parts = append(parts, fmt.Sprintf("Key factors: %s.", strings.Join(top, ", ")))
	}

	return strings.Join(parts, " ")
}

func bollingerPosition(current types.FeatureSnapshot) optional.Option[types.BBPosition] {
	if current.ClosePrice == 0 ||
		current.BBUpper.IsNone() || current.BBMiddle.IsNone() || current.BBLower.IsNone() {
		return optional.None[types.BBPosition]()
	}

	price := current.ClosePrice

	switch {
	case price > current.BBUpper.Unwrap():
		return optional.Some(types.BBAboveUpper)
	case price < current.BBLower.Unwrap():
		return optional.Some(types.BBBelowLower)
	case price > current.BBMiddle.Unwrap():
		return optional.Some(types.BBAboveMiddle)
	default:
		return optional.Some(types.BBBelowMiddle)
	}
}
