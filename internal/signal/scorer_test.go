package signal

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type ScorerTestSuite struct {
	suite.Suite

	scorer *Scorer
	date   time.Time
}

func TestScorerSuite(t *testing.T) {
	suite.Run(t, new(ScorerTestSuite))
}

func (suite *ScorerTestSuite) SetupTest() {
	suite.scorer = NewScorer()
	suite.date = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
}

func (suite *ScorerTestSuite) emptySnapshot(symbol string) types.FeatureSnapshot {
	return types.FeatureSnapshot{
		Symbol:        symbol,
		Market:        types.MarketUS,
		Date:          suite.date,
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
	}
}

func (suite *ScorerTestSuite) TestScoreMapping() {
	tests := []struct {
		score      int
		signal     types.SignalType
		confidence int
	}{
		{45, types.SignalStrongBuy, 90},
		{40, types.SignalStrongBuy, 90},
		{55, types.SignalStrongBuy, 90},
		{25, types.SignalBuy, 70},
		{20, types.SignalBuy, 66},
		{39, types.SignalBuy, 80},
		{-45, types.SignalStrongSell, 90},
		{-40, types.SignalStrongSell, 90},
		{-25, types.SignalSell, 70},
		{-20, types.SignalSell, 66},
		{0, types.SignalHold, 70},
		{10, types.SignalHold, 50},
		{-10, types.SignalHold, 50},
		{19, types.SignalHold, 40},
	}

	for _, tc := range tests {
		signal, confidence := mapScore(tc.score)
		suite.Equal(tc.signal, signal, "score %d", tc.score)
		suite.Equal(tc.confidence, confidence, "score %d", tc.score)
	}
}

func (suite *ScorerTestSuite) TestAllNullSnapshotHolds() {
	decision := suite.scorer.Score(suite.emptySnapshot("GHOST"), optional.None[types.FeatureSnapshot]())

	suite.Equal(types.SignalHold, decision.Signal)
	suite.Equal(70, decision.Confidence)
	suite.Empty(decision.Reasons)
	suite.False(decision.ChangeDetails.VolumeSpike)
	suite.True(decision.ChangeDetails.RSIChange.IsNone())
	suite.True(decision.ChangeDetails.BBPosition.IsNone())
}

func (suite *ScorerTestSuite) TestBullishConfluenceReasonOrder() {
	current := suite.emptySnapshot("NVDA")
	current.ClosePrice = 110
	current.RSI14 = optional.Some(65.0)
	current.SMA20 = optional.Some(100.0)
	current.SMA50 = optional.Some(95.0)
	current.BBUpper = optional.Some(105.0)
	current.BBMiddle = optional.Some(100.0)
	current.BBLower = optional.Some(95.0)
	current.VolumeRatio = optional.Some(2.5)
	current.MACD = optional.Some(1.2)
	current.MACDHistogram = optional.Some(0.3)

	previous := suite.emptySnapshot("NVDA")
	previous.ClosePrice = 100
	previous.RSI14 = optional.Some(50.0)

	decision := suite.scorer.Score(current, optional.Some(previous))

	// 10+10+10+15-10+10+10+5 = 60.
	suite.Equal(types.SignalStrongBuy, decision.Signal)
	suite.Equal(90, decision.Confidence)

	suite.Equal([]string{
		"RSI strong (>60)",
		"RSI surge (+15.0)",
		"Price well above SMA20 (+10.0%)",
		"Golden Cross confirmed (SMA20 > SMA50)",
		"Price above upper Bollinger Band",
		"High volume spike (2.5x avg)",
		"Strong price gain (+10.0%)",
		"MACD histogram positive",
	}, decision.Reasons)

	suite.True(decision.ChangeDetails.VolumeSpike)
	suite.InDelta(15.0, decision.ChangeDetails.RSIChange.Unwrap(), 1e-9)
	suite.InDelta(10.0, decision.ChangeDetails.PriceChange.Unwrap(), 1e-9)
	suite.Equal(types.BreakoutAboveSMA20, decision.ChangeDetails.SMABreakout.Unwrap())
	suite.Equal(types.BBAboveUpper, decision.ChangeDetails.BBPosition.Unwrap())
}

func (suite *ScorerTestSuite) TestBearishBreakdown() {
	current := suite.emptySnapshot("XYZ")
	current.ClosePrice = 80
	current.RSI14 = optional.Some(35.0)
	current.SMA20 = optional.Some(90.0)
	current.SMA50 = optional.Some(95.0)
	current.MACD = optional.Some(-1.0)
	current.MACDHistogram = optional.Some(-0.2)

	previous := suite.emptySnapshot("XYZ")
	previous.ClosePrice = 88
	previous.RSI14 = optional.Some(48.0)

	decision := suite.scorer.Score(current, optional.Some(previous))

	// RSI weak -10, RSI drop -10, well below SMA20 -10, death cross -15,
	// price drop -15, MACD negative -5 => -65.
	suite.Equal(types.SignalStrongSell, decision.Signal)
	suite.Equal(90, decision.Confidence)
	suite.Contains(decision.Reasons, "Death Cross confirmed (SMA20 < SMA50)")
	suite.Equal(types.BreakoutBelowSMA20, decision.ChangeDetails.SMABreakout.Unwrap())
}

func (suite *ScorerTestSuite) TestOversoldBounceSetup() {
	current := suite.emptySnapshot("DIP")
	current.ClosePrice = 90
	current.RSI14 = optional.Some(25.0)
	current.BBUpper = optional.Some(110.0)
	current.BBMiddle = optional.Some(100.0)
	current.BBLower = optional.Some(92.0)

	decision := suite.scorer.Score(current, optional.None[types.FeatureSnapshot]())

	// Oversold +20, below lower band +15 => 35 => BUY.
	suite.Equal(types.SignalBuy, decision.Signal)
	suite.Equal(78, decision.Confidence)
	suite.Equal([]string{
		"RSI oversold (<30)",
		"Price below lower Bollinger Band",
	}, decision.Reasons)
}

func (suite *ScorerTestSuite) TestSMARulesRequireBothAverages() {
	current := suite.emptySnapshot("HALF")
	current.ClosePrice = 110
	current.SMA20 = optional.Some(100.0)
	// SMA50 missing, so neither SMA rule may fire.

	decision := suite.scorer.Score(current, optional.None[types.FeatureSnapshot]())

	suite.Empty(decision.Reasons)
	suite.True(decision.ChangeDetails.SMABreakout.IsNone())
	suite.Equal(types.SignalHold, decision.Signal)
}

func (suite *ScorerTestSuite) TestDeterminism() {
	current := suite.emptySnapshot("SAME")
	current.ClosePrice = 104
	current.RSI14 = optional.Some(61.0)
	current.SMA20 = optional.Some(100.0)
	current.SMA50 = optional.Some(99.0)
	current.VolumeRatio = optional.Some(1.7)

	first := suite.scorer.Score(current, optional.None[types.FeatureSnapshot]())
	second := suite.scorer.Score(current, optional.None[types.FeatureSnapshot]())

	suite.Equal(first, second)
}
