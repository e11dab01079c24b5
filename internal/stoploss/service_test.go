package stoploss

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type memoryStopStore struct {
	mu     sync.Mutex
	states map[string]types.StopLossState
}

func newMemoryStopStore() *memoryStopStore {
	return &memoryStopStore{states: map[string]types.StopLossState{}}
}

func (m *memoryStopStore) key(portfolioID, symbolID string) string {
	return portfolioID + "|" + symbolID
}

func (m *memoryStopStore) GetStopState(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.StopLossState], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[m.key(portfolioID, symbolID)]
	if !ok {
		return optional.None[types.StopLossState](), nil
	}

	return optional.Some(state), nil
}

func (m *memoryStopStore) PutStopState(ctx context.Context, state types.StopLossState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.key(state.PortfolioID, state.SymbolID)

	// Same ratchet the real store enforces in SQL.
	if existing, ok := m.states[key]; ok && existing.CurrentStopLoss.GreaterThan(state.CurrentStopLoss) {
		state.CurrentStopLoss = existing.CurrentStopLoss
	}

	m.states[key] = state

	return nil
}

func (m *memoryStopStore) ListStopStates(ctx context.Context, portfolioID string) ([]types.StopLossState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := []types.StopLossState{}

	for _, state := range m.states {
		if state.PortfolioID == portfolioID {
			states = append(states, state)
		}
	}

	return states, nil
}

type memoryPositions struct {
	positions map[string]types.Position
}

func (m *memoryPositions) GetPosition(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.Position], error) {
	pos, ok := m.positions[portfolioID+"|"+symbolID]
	if !ok {
		return optional.None[types.Position](), nil
	}

	return optional.Some(pos), nil
}

func (m *memoryPositions) ListPositions(ctx context.Context, portfolioID string) ([]types.Position, error) {
	positions := []types.Position{}

	for _, pos := range m.positions {
		if pos.PortfolioID == portfolioID {
			positions = append(positions, pos)
		}
	}

	return positions, nil
}

type memorySnapshots struct {
	snapshots map[string]types.FeatureSnapshot
}

func snapshotKey(symbol string, market types.Market, date time.Time) string {
	return symbol + "|" + string(market) + "|" + date.Format("2006-01-02")
}

func (m *memorySnapshots) GetSnapshot(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.FeatureSnapshot], error) {
	snap, ok := m.snapshots[snapshotKey(symbol, market, date)]
	if !ok {
		return optional.None[types.FeatureSnapshot](), nil
	}

	return optional.Some(snap), nil
}

type ServiceTestSuite struct {
	suite.Suite

	states    *memoryStopStore
	positions *memoryPositions
	snapshots *memorySnapshots
	service   *Service
	date      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (suite *ServiceTestSuite) SetupTest() {
	engine, err := NewEngine(DefaultConfig())
	suite.Require().NoError(err)

	suite.states = newMemoryStopStore()
	suite.positions = &memoryPositions{positions: map[string]types.Position{}}
	suite.snapshots = &memorySnapshots{snapshots: map[string]types.FeatureSnapshot{}}
	suite.date = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	suite.service = NewService(engine, suite.states, suite.positions, suite.snapshots, logger.NewNopLogger())
}

func (suite *ServiceTestSuite) addPosition(portfolioID, symbolID, symbol string, buyPrice float64) {
	suite.positions.positions[portfolioID+"|"+symbolID] = types.Position{
		PortfolioID: portfolioID,
		SymbolID:    symbolID,
		Symbol:      symbol,
		Market:      types.MarketUS,
		Quantity:    decimal.NewFromInt(10),
		BuyPrice:    decimal.NewFromFloat(buyPrice),
	}
}

func (suite *ServiceTestSuite) addSnapshot(symbol string, date time.Time, close float64, atr optional.Option[float64]) {
	suite.snapshots.snapshots[snapshotKey(symbol, types.MarketUS, date)] = types.FeatureSnapshot{
		Symbol:     symbol,
		Market:     types.MarketUS,
		Date:       date,
		ClosePrice: close,
		ATR14:      atr,
	}
}

func (suite *ServiceTestSuite) TestRecalculatePersistsFirstStop() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addSnapshot("AAPL", suite.date, 100, optional.Some(2.5))

	calc, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
	suite.NoError(err)
	suite.True(calc.ShouldUpdate)

	stored, err := suite.states.GetStopState(context.Background(), "p1", "s1")
	suite.NoError(err)
	suite.True(stored.IsSome())
	suite.True(stored.Unwrap().CurrentStopLoss.Equal(decimal.NewFromInt(95)))
}

func (suite *ServiceTestSuite) TestRecalculateSkipsPersistWhenUnchanged() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addSnapshot("AAPL", suite.date, 100, optional.Some(2.5))

	_, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
	suite.NoError(err)

	// Next day the price drops; the candidate is lower and must not stick.
	nextDay := suite.date.AddDate(0, 0, 1)
	suite.addSnapshot("AAPL", nextDay, 96, optional.Some(2.5))

	calc, err := suite.service.Recalculate(context.Background(), "p1", "s1", nextDay)
	suite.NoError(err)
	suite.False(calc.ShouldUpdate)

	stored, _ := suite.states.GetStopState(context.Background(), "p1", "s1")
	suite.True(stored.Unwrap().CurrentStopLoss.Equal(decimal.NewFromInt(95)))
	suite.Equal(suite.date, stored.Unwrap().LastUpdatedDate)
}

func (suite *ServiceTestSuite) TestRecalculateMissingPosition() {
	_, err := suite.service.Recalculate(context.Background(), "p1", "missing", suite.date)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePositionNotFound))
}

func (suite *ServiceTestSuite) TestRecalculateMissingSnapshot() {
	suite.addPosition("p1", "s1", "AAPL", 100)

	_, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSnapshotMissing))
}

func (suite *ServiceTestSuite) TestRecalculatePortfolioCollectsErrors() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addPosition("p1", "s2", "MSFT", 200)
	suite.addSnapshot("AAPL", suite.date, 110, optional.Some(2.0))
	// MSFT has no snapshot for the date.

	result, err := suite.service.RecalculatePortfolio(context.Background(), "p1", suite.date)
	suite.NoError(err)
	suite.Equal(2, result.TotalPositions)
	suite.Equal(1, result.Updated)
	suite.Len(result.Errors, 1)

	symbolErr, ok := errors.AsSymbolError(result.Errors[0])
	suite.True(ok)
	suite.Equal("MSFT", symbolErr.Symbol)
}

func (suite *ServiceTestSuite) TestConcurrentRecalculationKeepsHighestStop() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addSnapshot("AAPL", suite.date, 110, optional.Some(2.0))

	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
			suite.NoError(err)
		}()
	}

	wg.Wait()

	// ATR distance 4 on price 110 is under the 5% floor, so the stop clamps
	// to 110 * 0.95 = 104.5 regardless of interleaving.
	stored, _ := suite.states.GetStopState(context.Background(), "p1", "s1")
	suite.True(stored.IsSome())
	suite.True(stored.Unwrap().CurrentStopLoss.Equal(decimal.NewFromFloat(104.5)),
		stored.Unwrap().CurrentStopLoss.String())
}

func (suite *ServiceTestSuite) TestCheckViolations() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addSnapshot("AAPL", suite.date, 110, optional.Some(2.0))

	_, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
	suite.NoError(err)

	// Close crashes below the 104.5 stop.
	nextDay := suite.date.AddDate(0, 0, 1)
	suite.addSnapshot("AAPL", nextDay, 100, optional.Some(2.0))

	violations, err := suite.service.CheckViolations(context.Background(), "p1", nextDay)
	suite.NoError(err)
	suite.Require().Len(violations, 1)

	violation := violations[0]
	suite.Equal("AAPL", violation.Symbol)
	suite.True(violation.ViolationAmount.Equal(decimal.NewFromFloat(4.5)), violation.ViolationAmount.String())

	// Detection is read-only: the stored stop did not move.
	stored, _ := suite.states.GetStopState(context.Background(), "p1", "s1")
	suite.True(stored.Unwrap().CurrentStopLoss.Equal(decimal.NewFromFloat(104.5)))
}

func (suite *ServiceTestSuite) TestNoViolationWhenAboveStop() {
	suite.addPosition("p1", "s1", "AAPL", 100)
	suite.addSnapshot("AAPL", suite.date, 110, optional.Some(2.0))

	_, err := suite.service.Recalculate(context.Background(), "p1", "s1", suite.date)
	suite.NoError(err)

	violations, err := suite.service.CheckViolations(context.Background(), "p1", suite.date)
	suite.NoError(err)
	suite.Empty(violations)
}
