package features

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/internal/version"
	"github.com/quantlens/eod-engine/pkg/errors"
	"go.uber.org/zap"
)

// BarReader supplies a symbol's bar history. The returned slice is ascending
// by date and may be shorter than requested; short history is a valid result.
type BarReader interface {
	GetBars(ctx context.Context, symbol string, market types.Market, start, end time.Time) ([]types.Bar, error)
}

// SnapshotStore persists feature snapshots, keyed by (symbol, market, date)
// with upsert semantics.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.FeatureSnapshot], error)
	PutSnapshot(ctx context.Context, snapshot types.FeatureSnapshot) error
}

// EMAStateStore persists the per-symbol EMA continuation state.
type EMAStateStore interface {
	GetEMAState(ctx context.Context, symbol string, market types.Market) (optional.Option[types.EMAState], error)
	PutEMAState(ctx context.Context, state types.EMAState) error
}

// Service fetches history, runs the calculator and persists the result for
// one symbol at a time. Distinct symbols are independent, so callers may run
// the service concurrently across a universe.
type Service struct {
	calculator *Calculator
	bars       BarReader
	snapshots  SnapshotStore
	emaStates  EMAStateStore
	logger     *logger.Logger
}

// NewService creates a feature service.
func NewService(bars BarReader, snapshots SnapshotStore, emaStates EMAStateStore, l *logger.Logger) *Service {
	return &Service{
		calculator: NewCalculator(),
		bars:       bars,
		snapshots:  snapshots,
		emaStates:  emaStates,
		logger:     l.Named("features"),
	}
}

// CalculateForSymbol computes and stores the snapshot for one symbol on one
// date. Store failures come back wrapped with the symbol and market attached
// so a universe pass can aggregate per-symbol errors without aborting.
func (s *Service) CalculateForSymbol(ctx context.Context, symbol string, market types.Market, date time.Time) (types.FeatureSnapshot, error) {
	existing, err := s.snapshots.GetSnapshot(ctx, symbol, market, date)
	if err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to check existing snapshot for %s", symbol)

		return types.FeatureSnapshot{}, errors.NewSymbolError(symbol, string(market), wrapped)
	}

	// A snapshot written by a compatible engine release stands as is. This
	// also keeps the MACD signal line intact, since recomputing the same day
	// would re-seed the already-advanced EMA state.
	if existing.IsSome() && !s.NeedsRecompute(existing.Unwrap()) {
		return existing.Unwrap(), nil
	}

	start := date.AddDate(0, 0, -LookbackDays)

	bars, err := s.bars.GetBars(ctx, symbol, market, start, date)
	if err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeBarFetchFailed, err, "failed to load bars for %s", symbol)

		return types.FeatureSnapshot{}, errors.NewSymbolError(symbol, string(market), wrapped)
	}

	prevState, err := s.emaStates.GetEMAState(ctx, symbol, market)
	if err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to load EMA state for %s", symbol)

		return types.FeatureSnapshot{}, errors.NewSymbolError(symbol, string(market), wrapped)
	}

	// A stale state from the target date or later would double-advance the
	// EMAs on recomputation; drop it and re-seed instead.
	if prevState.IsSome() && !prevState.Unwrap().Date.Before(date) {
		prevState = optional.None[types.EMAState]()
	}

	snapshot, state := s.calculator.Calculate(Input{
		Symbol:    symbol,
		Market:    market,
		Date:      date,
		Bars:      bars,
		PrevState: prevState,
	})

	if len(bars) == 0 {
		s.logger.Warn("no bars found",
			zap.String("symbol", symbol),
			zap.String("market", string(market)))
	}

	if err := s.snapshots.PutSnapshot(ctx, snapshot); err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to store snapshot for %s", symbol)

		return types.FeatureSnapshot{}, errors.NewSymbolError(symbol, string(market), wrapped)
	}

	if err := s.emaStates.PutEMAState(ctx, state); err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to store EMA state for %s", symbol)

		return types.FeatureSnapshot{}, errors.NewSymbolError(symbol, string(market), wrapped)
	}

	s.logger.Debug("features calculated",
		zap.String("symbol", symbol),
		zap.String("market", string(market)),
		zap.Int("bars", len(bars)))

	return snapshot, nil
}

// NeedsRecompute reports whether an existing snapshot should be rebuilt by
// the current engine release.
func (s *Service) NeedsRecompute(snapshot types.FeatureSnapshot) bool {
	stale, err := version.NeedsRecompute(snapshot.EngineVersion)
	if err != nil {
		s.logger.Warn("engine version comparison failed", zap.Error(err))

		return true
	}

	return stale
}
