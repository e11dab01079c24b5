package features

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/internal/version"
	"github.com/stretchr/testify/suite"
)

type CalculatorTestSuite struct {
	suite.Suite

	calculator *Calculator
	date       time.Time
}

func TestCalculatorSuite(t *testing.T) {
	suite.Run(t, new(CalculatorTestSuite))
}

func (suite *CalculatorTestSuite) SetupTest() {
	suite.calculator = NewCalculator()
	suite.date = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
}

// makeBars builds count ascending daily bars ending at the suite date, with
// close prices rising by one per day.
func (suite *CalculatorTestSuite) makeBars(count int, startPrice, volume float64) []types.Bar {
	bars := make([]types.Bar, count)

	for i := 0; i < count; i++ {
		price := startPrice + float64(i)
		bars[i] = types.Bar{
			Date:   suite.date.AddDate(0, 0, i-count+1),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: volume,
		}
	}

	return bars
}

func (suite *CalculatorTestSuite) TestEmptyBarsProduceAllNullSnapshot() {
	snapshot, state := suite.calculator.Calculate(Input{
		Symbol:    "AAPL",
		Market:    types.MarketUS,
		Date:      suite.date,
		Bars:      []types.Bar{},
		PrevState: optional.None[types.EMAState](),
	})

	suite.Equal("AAPL", snapshot.Symbol)
	suite.Equal(types.MarketUS, snapshot.Market)
	suite.Zero(snapshot.ClosePrice)
	suite.True(snapshot.SMA20.IsNone())
	suite.True(snapshot.SMA200.IsNone())
	suite.True(snapshot.RSI14.IsNone())
	suite.True(snapshot.MACD.IsNone())
	suite.True(snapshot.ATR14.IsNone())
	suite.True(snapshot.VolumeRatio.IsNone())
	suite.Equal(version.GetVersion(), snapshot.EngineVersion)

	suite.True(state.FastEMA.IsNone())
	suite.True(state.SignalEMA.IsNone())
}

func (suite *CalculatorTestSuite) TestShortHistoryLeavesLongIndicatorsNull() {
	bars := suite.makeBars(30, 100, 1_000_000)

	snapshot, _ := suite.calculator.Calculate(Input{
		Symbol: "MSFT",
		Market: types.MarketUS,
		Date:   suite.date,
		Bars:   bars,
	})

	suite.True(snapshot.SMA20.IsSome())
	suite.True(snapshot.RSI14.IsSome())
	suite.True(snapshot.SMA50.IsNone())
	suite.True(snapshot.SMA200.IsNone())
}

func (suite *CalculatorTestSuite) TestUptrendFeatures() {
	bars := suite.makeBars(250, 100, 1_000_000)

	snapshot, _ := suite.calculator.Calculate(Input{
		Symbol: "NVDA",
		Market: types.MarketUS,
		Date:   suite.date,
		Bars:   bars,
	})

	suite.InDelta(349.0, snapshot.ClosePrice, 1e-9)
	suite.True(snapshot.SMA20.IsSome())
	suite.True(snapshot.SMA50.IsSome())
	suite.True(snapshot.SMA200.IsSome())

	// In a steady uptrend the shorter average sits above the longer one and
	// momentum is pinned high.
	suite.Greater(snapshot.SMA20.Unwrap(), snapshot.SMA50.Unwrap())
	suite.Greater(snapshot.SMA50.Unwrap(), snapshot.SMA200.Unwrap())
	suite.InDelta(100.0, snapshot.RSI14.Unwrap(), 1e-9)

	// +1 per day over a 20-day window: mean is 9.5 below the latest close.
	suite.InDelta(339.5, snapshot.SMA20.Unwrap(), 1e-9)

	// Flat volume gives ratio exactly 1.
	suite.InDelta(1_000_000, snapshot.VolumeSMA20.Unwrap(), 1e-9)
	suite.InDelta(1.0, snapshot.VolumeRatio.Unwrap(), 1e-9)
}

func (suite *CalculatorTestSuite) TestVolumeRatioNoneWhenSMAZero() {
	bars := suite.makeBars(25, 100, 0)

	snapshot, _ := suite.calculator.Calculate(Input{
		Symbol: "GHOST",
		Market: types.MarketUS,
		Date:   suite.date,
		Bars:   bars,
	})

	suite.True(snapshot.VolumeSMA20.IsSome())
	suite.InDelta(0.0, snapshot.VolumeSMA20.Unwrap(), 1e-9)
	suite.True(snapshot.VolumeRatio.IsNone())
}

func (suite *CalculatorTestSuite) TestDeterministicRecomputation() {
	bars := suite.makeBars(250, 50, 500_000)

	in := Input{
		Symbol: "TEVA",
		Market: types.MarketTASE,
		Date:   suite.date,
		Bars:   bars,
	}

	first, firstState := suite.calculator.Calculate(in)
	second, secondState := suite.calculator.Calculate(in)

	suite.Equal(first, second)
	suite.Equal(firstState, secondState)
}

func (suite *CalculatorTestSuite) TestMACDSignalFormsOnSecondDay() {
	bars := suite.makeBars(100, 100, 1_000_000)

	first, state := suite.calculator.Calculate(Input{
		Symbol: "AMD",
		Market: types.MarketUS,
		Date:   suite.date,
		Bars:   bars,
	})

	// Day one: MACD line only, signal seeds into state.
	suite.True(first.MACD.IsSome())
	suite.True(first.MACDSignal.IsNone())
	suite.True(first.MACDHistogram.IsNone())
	suite.True(state.SignalEMA.IsSome())

	nextDate := suite.date.AddDate(0, 0, 1)
	nextBars := append(append([]types.Bar{}, bars...), types.Bar{
		Date:   nextDate,
		Open:   199.5,
		High:   201,
		Low:    199,
		Close:  200,
		Volume: 1_000_000,
	})

	second, nextState := suite.calculator.Calculate(Input{
		Symbol:    "AMD",
		Market:    types.MarketUS,
		Date:      nextDate,
		Bars:      nextBars,
		PrevState: optional.Some(state),
	})

	suite.True(second.MACD.IsSome())
	suite.True(second.MACDSignal.IsSome())
	suite.True(second.MACDHistogram.IsSome())
	suite.Equal(nextDate, nextState.Date)
}
