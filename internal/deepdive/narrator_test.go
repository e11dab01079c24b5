package deepdive

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type NarratorTestSuite struct {
	suite.Suite

	narrator *Narrator
	date     time.Time
}

func TestNarratorSuite(t *testing.T) {
	suite.Run(t, new(NarratorTestSuite))
}

func (suite *NarratorTestSuite) SetupTest() {
	suite.narrator = NewNarrator()
	suite.date = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
}

func (suite *NarratorTestSuite) decision(signal types.SignalType, confidence int) types.SignalDecision {
	return types.SignalDecision{
		Symbol:     "NVDA",
		Market:     types.MarketUS,
		Date:       suite.date,
		Signal:     signal,
		Confidence: confidence,
		Reasons:    []string{"RSI strong (>60)", "Golden Cross confirmed (SMA20 > SMA50)"},
	}
}

func (suite *NarratorTestSuite) snapshot() types.FeatureSnapshot {
	return types.FeatureSnapshot{
		Symbol:      "NVDA",
		Market:      types.MarketUS,
		Date:        suite.date,
		ClosePrice:  120,
		SMA20:       optional.Some(115.0),
		SMA50:       optional.Some(110.0),
		SMA200:      optional.Some(100.0),
		RSI14:       optional.Some(65.0),
		ATR14:       optional.Some(1.2),
		VolumeRatio: optional.Some(1.1),
		BBUpper:     optional.Some(125.0),
		BBMiddle:    optional.Some(115.0),
		BBLower:     optional.Some(105.0),
	}
}

func (suite *NarratorTestSuite) TestRejectsNonStrongSignals() {
	for _, signal := range []types.SignalType{types.SignalBuy, types.SignalSell, types.SignalHold} {
		_, err := suite.narrator.Generate(suite.decision(signal, 70), []types.FeatureSnapshot{suite.snapshot()})
		suite.Error(err)
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
	}
}

func (suite *NarratorTestSuite) TestRejectsEmptyHistory() {
	_, err := suite.narrator.Generate(suite.decision(types.SignalStrongBuy, 90), nil)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSnapshotMissing))
}

func (suite *NarratorTestSuite) TestStrongBuyReport() {
	history := []types.FeatureSnapshot{suite.snapshot(), suite.snapshot(), suite.snapshot()}

	report, err := suite.narrator.Generate(suite.decision(types.SignalStrongBuy, 90), history)
	suite.Require().NoError(err)

	suite.Equal("NVDA", report.Symbol)
	suite.Equal(types.SignalStrongBuy, report.Signal)
	suite.Equal(3, report.HistoricalDataPoints)

	suite.Equal("STRONG_UPTREND (all SMAs aligned)", report.TechnicalAnalysis.Trend)
	suite.Equal("STRONG (RSI > 60) - bullish momentum", report.TechnicalAnalysis.Momentum)
	// ATR 1.2 on price 120 is 1.0% of price.
	suite.Equal("LOW (ATR 1.0% of price) - stable price action", report.TechnicalAnalysis.Volatility)
	suite.Equal("NORMAL (1.1x average)", report.TechnicalAnalysis.Volume)

	suite.Equal(types.RiskLow, report.RiskAssessment.Level)
	suite.Equal([]string{"No significant risk factors identified"}, report.RiskAssessment.Factors)

	suite.Contains(report.Recommendations, "STRONG BUY: Consider entering or adding to position")
	suite.Contains(report.Recommendations, "Signal aligned with strong uptrend - high conviction")
	suite.Contains(report.Summary, "NVDA generated a STRONG_BUY signal with 90% confidence.")
	suite.Contains(report.Summary, "Key factors: RSI strong (>60), Golden Cross confirmed (SMA20 > SMA50).")

	// Price 120 sits between the middle (115) and upper (125) bands.
	suite.Equal(types.BBAboveMiddle, report.BBPosition.Unwrap())
}

func (suite *NarratorTestSuite) TestHighRiskAccumulates() {
	snap := suite.snapshot()
	snap.ATR14 = optional.Some(5.0)         // 4.2% of price: +2
	snap.RSI14 = optional.Some(75.0)        // overbought: +1
	snap.VolumeRatio = optional.Some(0.3)   // thin volume: +1

	report, err := suite.narrator.Generate(suite.decision(types.SignalStrongBuy, 90), []types.FeatureSnapshot{snap})
	suite.Require().NoError(err)

	suite.Equal(types.RiskHigh, report.RiskAssessment.Level)
	suite.Contains(report.RiskAssessment.Factors, "High volatility (ATR > 3% of price)")
	suite.Contains(report.RiskAssessment.Factors, "Overbought conditions (RSI > 70)")
	suite.Contains(report.RiskAssessment.Factors, "Low volume (< 0.5x average)")
	suite.Contains(report.Recommendations, "Use smaller position size due to high risk")
	suite.Contains(report.Recommendations, "Implement tight stop-loss due to high volatility")
	suite.Contains(report.Recommendations, "Wait for pullback before entering (overbought conditions)")
}

func (suite *NarratorTestSuite) TestMediumRiskFromConfidenceAndVolatility() {
	snap := suite.snapshot()
	snap.ATR14 = optional.Some(2.4) // 2.0% of price: +1

	report, err := suite.narrator.Generate(suite.decision(types.SignalStrongSell, 55), []types.FeatureSnapshot{snap})
	suite.Require().NoError(err)

	// Moderate volatility +1 and low confidence +1.
	suite.Equal(types.RiskMedium, report.RiskAssessment.Level)
	suite.Contains(report.RiskAssessment.Factors, "Low signal confidence (<60%)")
	suite.Contains(report.Recommendations, "STRONG SELL: Consider exiting position or avoiding entry")
	suite.Contains(report.Recommendations, "Standard stop-loss recommended")
}

func (suite *NarratorTestSuite) TestInsufficientDataClassifications() {
	snap := types.FeatureSnapshot{
		Symbol:     "IPO",
		Market:     types.MarketUS,
		Date:       suite.date,
		ClosePrice: 50,
	}

	report, err := suite.narrator.Generate(suite.decision(types.SignalStrongBuy, 90), []types.FeatureSnapshot{snap})
	suite.Require().NoError(err)

	suite.Equal("INSUFFICIENT_DATA", report.TechnicalAnalysis.Trend)
	suite.Equal("INSUFFICIENT_DATA", report.TechnicalAnalysis.Momentum)
	suite.Equal("INSUFFICIENT_DATA", report.TechnicalAnalysis.Volatility)
	suite.Equal("INSUFFICIENT_DATA", report.TechnicalAnalysis.Volume)
	suite.True(report.BBPosition.IsNone())
}

func (suite *NarratorTestSuite) TestCounterTrendBuyFlagged() {
	snap := suite.snapshot()
	snap.ClosePrice = 100
	snap.SMA20 = optional.Some(105.0)
	snap.SMA50 = optional.Some(110.0)
	snap.SMA200 = optional.Some(120.0)

	report, err := suite.narrator.Generate(suite.decision(types.SignalStrongBuy, 90), []types.FeatureSnapshot{snap})
	suite.Require().NoError(err)

	suite.Equal("STRONG_DOWNTREND (all SMAs aligned)", report.TechnicalAnalysis.Trend)
	suite.Contains(report.Recommendations, "CAUTION: Buy signal against downtrend - counter-trend trade")
}
