package stoploss

import (
	"context"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StateStore persists stop states keyed by (portfolio, symbol) with upsert
// semantics. Implementations must never let a write lower a stored
// current_stop_loss (the store-level half of the ratchet).
type StateStore interface {
	GetStopState(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.StopLossState], error)
	PutStopState(ctx context.Context, state types.StopLossState) error
	ListStopStates(ctx context.Context, portfolioID string) ([]types.StopLossState, error)
}

// PositionReader supplies positions, read-only from the engine's side.
type PositionReader interface {
	GetPosition(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.Position], error)
	ListPositions(ctx context.Context, portfolioID string) ([]types.Position, error)
}

// SnapshotReader supplies the day's feature snapshot for price and ATR.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.FeatureSnapshot], error)
}

// PortfolioResult summarizes a portfolio-wide stop recalculation.
type PortfolioResult struct {
	PortfolioID    string                      `json:"portfolio_id"`
	Date           time.Time                   `json:"date"`
	TotalPositions int                         `json:"total_positions"`
	Updated        int                         `json:"updated"`
	Unchanged      int                         `json:"unchanged"`
	Calculations   []types.StopLossCalculation `json:"calculations"`
	Errors         []error                     `json:"-"`
}

// Service runs the engine against persisted state. The read-modify-write on
// one (portfolio, symbol) key is not safe to run concurrently against
// itself, so the service serializes per position key with a mutex map:
// at most one stop recomputation is in flight per key, while distinct
// positions proceed in parallel.
type Service struct {
	engine    *Engine
	states    StateStore
	positions PositionReader
	snapshots SnapshotReader
	logger    *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a stop-loss service.
func NewService(engine *Engine, states StateStore, positions PositionReader, snapshots SnapshotReader, l *logger.Logger) *Service {
	return &Service{
		engine:    engine,
		states:    states,
		positions: positions,
		snapshots: snapshots,
		logger:    l.Named("stoploss"),
		locks:     map[string]*sync.Mutex{},
	}
}

// positionLock returns the mutex guarding one (portfolio, symbol) key.
func (s *Service) positionLock(portfolioID, symbolID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioID + "|" + symbolID

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}

	return lock
}

// Recalculate computes the stop for one position on one date and persists
// it when the candidate improved on the stored stop. A candidate below the
// stored stop is discarded without touching state.
func (s *Service) Recalculate(ctx context.Context, portfolioID, symbolID string, date time.Time) (types.StopLossCalculation, error) {
	lock := s.positionLock(portfolioID, symbolID)
	lock.Lock()
	defer lock.Unlock()

	position, err := s.positions.GetPosition(ctx, portfolioID, symbolID)
	if err != nil {
		return types.StopLossCalculation{}, errors.Wrapf(errors.ErrCodeStoreUnavailable, err,
			"failed to load position %s/%s", portfolioID, symbolID)
	}

	if position.IsNone() {
		return types.StopLossCalculation{}, errors.Newf(errors.ErrCodePositionNotFound,
			"position not found for symbol %s in portfolio %s", symbolID, portfolioID)
	}

	pos := position.Unwrap()

	snapshot, err := s.snapshots.GetSnapshot(ctx, pos.Symbol, pos.Market, date)
	if err != nil {
		return types.StopLossCalculation{}, errors.Wrapf(errors.ErrCodeStoreUnavailable, err,
			"failed to load snapshot for %s", pos.Symbol)
	}

	if snapshot.IsNone() {
		return types.StopLossCalculation{}, errors.Newf(errors.ErrCodeSnapshotMissing,
			"no features found for %s on %s", pos.Symbol, date.Format("2006-01-02"))
	}

	existing, err := s.states.GetStopState(ctx, portfolioID, symbolID)
	if err != nil {
		return types.StopLossCalculation{}, errors.Wrapf(errors.ErrCodeStopStateFailed, err,
			"failed to load stop state for %s/%s", portfolioID, symbolID)
	}

	calc := s.engine.Compute(pos, snapshot.Unwrap(), existing, date)

	if !calc.ShouldUpdate && existing.IsSome() {
		s.logger.Debug("stop unchanged",
			zap.String("symbol", pos.Symbol),
			zap.String("stop", calc.CurrentStopLoss.String()))

		return calc, nil
	}

	if err := s.states.PutStopState(ctx, StateFromCalculation(calc)); err != nil {
		return types.StopLossCalculation{}, errors.Wrapf(errors.ErrCodeStopStateFailed, err,
			"failed to store stop state for %s/%s", portfolioID, symbolID)
	}

	s.logger.Info("stop updated",
		zap.String("symbol", pos.Symbol),
		zap.String("stop", calc.CurrentStopLoss.String()),
		zap.String("type", string(calc.StopLossType)),
		zap.String("percent_below_price", calc.StopLossPercent.String()))

	return calc, nil
}

// RecalculatePortfolio recomputes stops for every position in a portfolio.
// Per-position failures are collected, not fatal.
func (s *Service) RecalculatePortfolio(ctx context.Context, portfolioID string, date time.Time) (PortfolioResult, error) {
	positions, err := s.positions.ListPositions(ctx, portfolioID)
	if err != nil {
		return PortfolioResult{}, errors.Wrapf(errors.ErrCodeStoreUnavailable, err,
			"failed to list positions for portfolio %s", portfolioID)
	}

	result := PortfolioResult{
		PortfolioID:    portfolioID,
		Date:           date,
		TotalPositions: len(positions),
		Calculations:   []types.StopLossCalculation{},
	}

	for _, pos := range positions {
		calc, err := s.Recalculate(ctx, portfolioID, pos.SymbolID, date)
		if err != nil {
			s.logger.Error("stop recalculation failed",
				zap.String("symbol", pos.Symbol),
				zap.Error(err))
			result.Errors = append(result.Errors, errors.NewSymbolError(pos.Symbol, string(pos.Market), err))

			continue
		}

		result.Calculations = append(result.Calculations, calc)

		if calc.ShouldUpdate {
			result.Updated++
		} else {
			result.Unchanged++
		}
	}

	s.logger.Info("portfolio stops recalculated",
		zap.String("portfolio", portfolioID),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged))

	return result, nil
}

// CheckViolations compares each persisted stop in a portfolio against the
// day's close. Detection is read-only: it reports magnitude and percentage
// but never mutates stop state, and exiting the position stays an external
// decision.
func (s *Service) CheckViolations(ctx context.Context, portfolioID string, date time.Time) ([]types.StopLossViolation, error) {
	states, err := s.states.ListStopStates(ctx, portfolioID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err,
			"failed to list stop states for portfolio %s", portfolioID)
	}

	violations := []types.StopLossViolation{}

	for _, state := range states {
		position, err := s.positions.GetPosition(ctx, portfolioID, state.SymbolID)
		if err != nil || position.IsNone() {
			continue
		}

		pos := position.Unwrap()

		snapshot, err := s.snapshots.GetSnapshot(ctx, pos.Symbol, pos.Market, date)
		if err != nil || snapshot.IsNone() {
			continue
		}

		closePrice := decimal.NewFromFloat(snapshot.Unwrap().ClosePrice)
		if closePrice.GreaterThanOrEqual(state.CurrentStopLoss) {
			continue
		}

		amount := state.CurrentStopLoss.Sub(closePrice)
		percent := decimal.Zero

		if state.CurrentStopLoss.IsPositive() {
			percent = amount.Div(state.CurrentStopLoss).Mul(decimal.NewFromInt(100))
		}

		violation := types.StopLossViolation{
			PortfolioID:      portfolioID,
			SymbolID:         state.SymbolID,
			Symbol:           pos.Symbol,
			Date:             date,
			CurrentPrice:     closePrice,
			StopLoss:         state.CurrentStopLoss,
			ViolationAmount:  amount.Round(2),
			ViolationPercent: percent.Round(2),
		}
		violations = append(violations, violation)

		s.logger.Warn("stop loss violated",
			zap.String("symbol", pos.Symbol),
			zap.String("price", closePrice.String()),
			zap.String("stop", state.CurrentStopLoss.String()),
			zap.String("violation_percent", violation.ViolationPercent.String()))
	}

	return violations, nil
}
