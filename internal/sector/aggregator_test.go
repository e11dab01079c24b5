package sector

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type AggregatorTestSuite struct {
	suite.Suite

	aggregator *Aggregator
	date       time.Time
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func (suite *AggregatorTestSuite) SetupTest() {
	suite.aggregator = NewAggregator()
	suite.date = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
}

func (suite *AggregatorTestSuite) snapshot(symbol string, rsi, close, sma20, volRatio float64) types.FeatureSnapshot {
	return types.FeatureSnapshot{
		Symbol:      symbol,
		Market:      types.MarketUS,
		Date:        suite.date,
		ClosePrice:  close,
		RSI14:       optional.Some(rsi),
		SMA20:       optional.Some(sma20),
		VolumeRatio: optional.Some(volRatio),
	}
}

func (suite *AggregatorTestSuite) TestAggregateRanksByScore() {
	snapshots := []types.FeatureSnapshot{
		suite.snapshot("WEAK1", 35, 95, 100, 0.9),
		suite.snapshot("WEAK2", 38, 93, 100, 0.8),
		suite.snapshot("STRONG1", 70, 110, 100, 1.5),
		suite.snapshot("STRONG2", 65, 108, 100, 1.3),
	}
	tags := map[string]string{
		"WEAK1":   "Energy",
		"WEAK2":   "Energy",
		"STRONG1": "Technology",
		"STRONG2": "Technology",
	}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 2)
	suite.Equal("Technology", strengths[0].Sector)
	suite.Equal(1, strengths[0].Rank)
	suite.Equal("Energy", strengths[1].Sector)
	suite.Equal(2, strengths[1].Rank)
	suite.Greater(strengths[0].Score, strengths[1].Score)

	tech := strengths[0]
	suite.Equal(2, tech.SymbolCount)
	suite.Equal(2, tech.StrongSymbols)
	suite.Equal(0, tech.WeakSymbols)
	suite.InDelta(67.5, tech.AvgRSI.Unwrap(), 1e-9)
}

func (suite *AggregatorTestSuite) TestUntaggedSymbolsSkipped() {
	snapshots := []types.FeatureSnapshot{
		suite.snapshot("TAGGED", 55, 100, 100, 1.0),
		suite.snapshot("UNTAGGED", 55, 100, 100, 1.0),
	}
	tags := map[string]string{"TAGGED": "Finance"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.Equal(1, strengths[0].SymbolCount)
}

func (suite *AggregatorTestSuite) TestEmptySectorExcludedNotZeroScored() {
	snapshots := []types.FeatureSnapshot{
		suite.snapshot("AAA", 55, 100, 100, 1.0),
	}
	// The tag map knows a sector no snapshot belongs to.
	tags := map[string]string{"AAA": "Finance", "ZZZ": "Utilities"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.Equal("Finance", strengths[0].Sector)
}

func (suite *AggregatorTestSuite) TestOtherDatesAndMarketsIgnored() {
	yesterday := suite.snapshot("OLD", 80, 120, 100, 2.0)
	yesterday.Date = suite.date.AddDate(0, 0, -1)

	otherMarket := suite.snapshot("TLV", 80, 120, 100, 2.0)
	otherMarket.Market = types.MarketTASE

	snapshots := []types.FeatureSnapshot{
		yesterday,
		otherMarket,
		suite.snapshot("NOW", 50, 100, 100, 1.0),
	}
	tags := map[string]string{"OLD": "Technology", "TLV": "Technology", "NOW": "Technology"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.Equal(1, strengths[0].SymbolCount)
}

func (suite *AggregatorTestSuite) TestScoreClampedToHundred() {
	snapshots := []types.FeatureSnapshot{
		suite.snapshot("MOON", 95, 200, 100, 5.0),
	}
	tags := map[string]string{"MOON": "Crypto"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.InDelta(100.0, strengths[0].Score, 1e-9)
}

func (suite *AggregatorTestSuite) TestScoreClampedToZero() {
	snapshots := []types.FeatureSnapshot{
		suite.snapshot("DUST", 5, 20, 100, 0.1),
	}
	tags := map[string]string{"DUST": "Shipping"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.InDelta(0.0, strengths[0].Score, 1e-9)
}

func (suite *AggregatorTestSuite) TestStableOrderForEqualScores() {
	first := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS),
		[]types.FeatureSnapshot{
			suite.snapshot("A1", 50, 100, 100, 1.0),
			suite.snapshot("B1", 50, 100, 100, 1.0),
		},
		map[string]string{"A1": "Alpha", "B1": "Beta"})

	suite.Require().Len(first, 2)
	// Equal scores keep first-seen input order.
	suite.Equal("Alpha", first[0].Sector)
	suite.Equal("Beta", first[1].Sector)
	suite.Equal(first[0].Score, first[1].Score)
}

func (suite *AggregatorTestSuite) TestMissingIndicatorsAveragedOverPresentOnly() {
	partial := types.FeatureSnapshot{
		Symbol:      "PART",
		Market:      types.MarketUS,
		Date:        suite.date,
		ClosePrice:  100,
		RSI14:       optional.None[float64](),
		SMA20:       optional.None[float64](),
		VolumeRatio: optional.None[float64](),
	}

	snapshots := []types.FeatureSnapshot{
		partial,
		suite.snapshot("FULL", 60, 105, 100, 1.2),
	}
	tags := map[string]string{"PART": "Mixed", "FULL": "Mixed"}

	strengths := suite.aggregator.Aggregate(suite.date, optional.Some(types.MarketUS), snapshots, tags)

	suite.Require().Len(strengths, 1)
	suite.Equal(2, strengths[0].SymbolCount)
	suite.InDelta(60.0, strengths[0].AvgRSI.Unwrap(), 1e-9)
}
