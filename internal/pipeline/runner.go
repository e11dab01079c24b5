// Package pipeline orchestrates the daily end-of-day run: ingest bars,
// compute features, score signals, rank sectors, recalculate stops and
// narrate deep dives, in that order.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/deepdive"
	"github.com/quantlens/eod-engine/internal/features"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/sector"
	"github.com/quantlens/eod-engine/internal/signal"
	"github.com/quantlens/eod-engine/internal/stoploss"
	"github.com/quantlens/eod-engine/internal/store"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/quantlens/eod-engine/pkg/marketdata"
	"go.uber.org/zap"
)

// OnProgress reports stage progress, for CLI progress bars. May be nil.
type OnProgress func(stage string, current, total int)

// Summary is the outcome of one daily run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Date         time.Time     `json:"date"`
	Market       types.Market  `json:"market"`
	Symbols      int           `json:"symbols"`
	Snapshots    int           `json:"snapshots"`
	Decisions    int           `json:"decisions"`
	StrongCount  int           `json:"strong_count"`
	Sectors      int           `json:"sectors"`
	StopsUpdated int           `json:"stops_updated"`
	DeepDives    int           `json:"deep_dives"`
	Duration     time.Duration `json:"duration"`
	// SymbolErrors holds per-symbol failures that did not abort the run.
	SymbolErrors []error `json:"-"`
}

// Runner wires the stages together over one Store.
type Runner struct {
	config   Config
	market   types.Market
	store    *store.Store
	provider marketdata.Provider

	features   *features.Service
	scorer     *signal.Scorer
	aggregator *sector.Aggregator
	stops      *stoploss.Service
	narrator   *deepdive.Narrator

	logger   *logger.Logger
	progress OnProgress
}

// NewRunner builds a Runner from config. The provider must support the
// configured market; that capability is checked here, not at run time.
func NewRunner(config Config, s *store.Store, provider marketdata.Provider, l *logger.Logger) (*Runner, error) {
	market, err := types.ParseMarket(config.Market)
	if err != nil {
		return nil, err
	}

	if !provider.SupportsMarket(market) {
		return nil, errors.Newf(errors.ErrCodeUnsupportedMarket,
			"provider %s does not serve market %s", provider.Name(), market)
	}

	engine, err := stoploss.NewEngine(config.StopLoss.EngineConfig())
	if err != nil {
		return nil, err
	}

	return &Runner{
		config:     config,
		market:     market,
		store:      s,
		provider:   provider,
		features:   features.NewService(s, s, s, l),
		scorer:     signal.NewScorer(),
		aggregator: sector.NewAggregator(),
		stops:      stoploss.NewService(engine, s, s, s, l),
		narrator:   deepdive.NewNarrator(),
		logger:     l.Named("pipeline"),
	}, nil
}

// SetProgress installs a progress callback.
func (r *Runner) SetProgress(progress OnProgress) {
	r.progress = progress
}

func (r *Runner) report(stage string, current, total int) {
	if r.progress != nil {
		r.progress(stage, current, total)
	}
}

// RunDaily executes the full pipeline for one trading date. A date that
// already has a run recorded is refused unless force is set, which discards
// the old run record and recomputes the day idempotently.
func (r *Runner) RunDaily(ctx context.Context, date time.Time, force bool) (Summary, error) {
	existing, err := r.store.GetPipelineRun(ctx, r.market, date)
	if err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to check run history", err)
	}

	if existing.IsSome() {
		if !force {
			return Summary{}, errors.Newf(errors.ErrCodePipelineAlreadyRan,
				"pipeline already ran for %s on %s (run %s)",
				r.market, date.Format("2006-01-02"), existing.Unwrap().RunID)
		}

		if err := r.store.DeletePipelineRun(ctx, r.market, date); err != nil {
			return Summary{}, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to clear previous run", err)
		}
	}

	run := types.PipelineRun{
		RunID:     uuid.New().String(),
		Date:      date,
		Market:    r.market,
		Status:    types.RunRunning,
		StartedAt: time.Now(),
	}

	if err := r.store.StartPipelineRun(ctx, run); err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to record run", err)
	}

	summary, runErr := r.runStages(ctx, date)
	summary.RunID = run.RunID
	summary.Date = date
	summary.Market = r.market
	summary.Duration = time.Since(run.StartedAt)

	status := types.RunCompleted
	detail := fmt.Sprintf("symbols=%d snapshots=%d decisions=%d strong=%d sectors=%d stops_updated=%d deep_dives=%d symbol_errors=%d",
		summary.Symbols, summary.Snapshots, summary.Decisions, summary.StrongCount,
		summary.Sectors, summary.StopsUpdated, summary.DeepDives, len(summary.SymbolErrors))

	if runErr != nil {
		status = types.RunFailed
		detail = runErr.Error()
	}

	if err := r.store.FinishPipelineRun(ctx, run.RunID, status, time.Now(), detail); err != nil {
		r.logger.Error("failed to finalize run record", zap.Error(err))
	}

	if runErr != nil {
		return summary, runErr
	}

	r.logger.Info("daily run completed",
		zap.String("run_id", run.RunID),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("market", string(r.market)),
		zap.String("detail", detail),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

func (r *Runner) runStages(ctx context.Context, date time.Time) (Summary, error) {
	summary := Summary{}

	symbols, err := r.store.ListActiveSymbols(ctx, r.market)
	if err != nil {
		return summary, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to list universe", err)
	}

	summary.Symbols = len(symbols)

	snapshots, symbolErrors := r.featureStage(ctx, symbols, date)
	summary.Snapshots = snapshots
	summary.SymbolErrors = symbolErrors

	if err := r.signalStage(ctx, symbols, date, &summary); err != nil {
		return summary, err
	}

	if err := r.sectorStage(ctx, date, &summary); err != nil {
		return summary, err
	}

	if err := r.stopStage(ctx, date, &summary); err != nil {
		return summary, err
	}

	if err := r.deepDiveStage(ctx, date, &summary); err != nil {
		return summary, err
	}

	return summary, nil
}

// featureStage ingests bars and computes snapshots across the universe with
// a bounded worker pool. A symbol failure is recorded and skipped; it never
// aborts the stage.
func (r *Runner) featureStage(ctx context.Context, symbols []types.Symbol, date time.Time) (int, []error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		succeeded int
		failures  []error
	)

	sem := make(chan struct{}, r.config.Workers)
	start := date.AddDate(0, 0, -r.config.LookbackDays)

	for _, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}

		go func(sym types.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.processSymbol(ctx, sym, start, date)

			mu.Lock()
			defer mu.Unlock()

			completed++
			if err != nil {
				failures = append(failures, err)
				r.logger.Error("symbol failed",
					zap.String("symbol", sym.Symbol),
					zap.Error(err))
			} else {
				succeeded++
			}

			r.report("features", completed, len(symbols))
		}(sym)
	}

	wg.Wait()

	return succeeded, failures
}

func (r *Runner) processSymbol(ctx context.Context, sym types.Symbol, start, date time.Time) error {
	bars, err := r.provider.GetDailyBars(ctx, sym.Symbol, sym.Market, start, date)
	if err != nil {
		return errors.NewSymbolError(sym.Symbol, string(sym.Market), err)
	}

	if err := r.store.UpsertBars(ctx, sym.Symbol, sym.Market, bars); err != nil {
		wrapped := errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to store bars for %s", sym.Symbol)

		return errors.NewSymbolError(sym.Symbol, string(sym.Market), wrapped)
	}

	_, err = r.features.CalculateForSymbol(ctx, sym.Symbol, sym.Market, date)

	return err
}

// signalStage scores every symbol that produced a snapshot today against its
// previous snapshot and persists the decisions.
func (r *Runner) signalStage(ctx context.Context, symbols []types.Symbol, date time.Time, summary *Summary) error {
	for i, sym := range symbols {
		history, err := r.store.GetSnapshotHistory(ctx, sym.Symbol, sym.Market, date, 2)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to load history for %s", sym.Symbol)
		}

		if len(history) == 0 || !history[len(history)-1].Date.Equal(dayOf(date)) {
			continue
		}

		current := history[len(history)-1]
		previous := optional.None[types.FeatureSnapshot]()

		if len(history) > 1 {
			previous = optional.Some(history[0])
		}

		decision := r.scorer.Score(current, previous)

		if err := r.store.PutDecision(ctx, decision); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to store decision for %s", sym.Symbol)
		}

		summary.Decisions++

		if decision.Signal.IsStrong() {
			summary.StrongCount++
		}

		r.report("signals", i+1, len(symbols))
	}

	return nil
}

func (r *Runner) sectorStage(ctx context.Context, date time.Time, summary *Summary) error {
	snapshots, err := r.store.ListSnapshotsByDate(ctx, r.market, date)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to list snapshots for sector ranking", err)
	}

	tags, err := r.store.GetSectorTags(ctx, r.market)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to load sector tags", err)
	}

	strengths := r.aggregator.Aggregate(dayOf(date), optional.Some(r.market), snapshots, tags)

	if err := r.store.ReplaceSectorStrengths(ctx, r.market, date, strengths); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to store sector strengths", err)
	}

	summary.Sectors = len(strengths)

	return nil
}

func (r *Runner) stopStage(ctx context.Context, date time.Time, summary *Summary) error {
	for _, portfolioID := range r.config.Portfolios {
		result, err := r.stops.RecalculatePortfolio(ctx, portfolioID, date)
		if err != nil {
			return err
		}

		summary.StopsUpdated += result.Updated
		summary.SymbolErrors = append(summary.SymbolErrors, result.Errors...)

		violations, err := r.stops.CheckViolations(ctx, portfolioID, date)
		if err != nil {
			return err
		}

		if len(violations) > 0 {
			r.logger.Warn("stop violations detected",
				zap.String("portfolio", portfolioID),
				zap.Int("count", len(violations)))
		}
	}

	return nil
}

// deepDiveStage narrates a report for every STRONG_* decision of the day.
func (r *Runner) deepDiveStage(ctx context.Context, date time.Time, summary *Summary) error {
	decisions, err := r.store.ListDecisionsByDate(ctx, r.market, date)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to list decisions for deep dives", err)
	}

	for _, decision := range decisions {
		if !decision.Signal.IsStrong() {
			continue
		}

		history, err := r.store.GetSnapshotHistory(ctx, decision.Symbol, decision.Market, date, deepdive.HistoryDays)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to load history for %s", decision.Symbol)
		}

		report, err := r.narrator.Generate(decision, history)
		if err != nil {
			summary.SymbolErrors = append(summary.SymbolErrors,
				errors.NewSymbolError(decision.Symbol, string(decision.Market), err))

			continue
		}

		if err := r.store.PutDeepDiveReport(ctx, report); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to store deep dive for %s", decision.Symbol)
		}

		summary.DeepDives++
	}

	return nil
}

// CheckViolations reports positions whose close on date broke their persisted
// stop. Read-only; it never mutates stop state.
func (r *Runner) CheckViolations(ctx context.Context, portfolioID string, date time.Time) ([]types.StopLossViolation, error) {
	return r.stops.CheckViolations(ctx, portfolioID, date)
}

// Backfill ingests bars for the whole universe over [from, to] without
// computing features, using the same bounded pool as the daily run. Per-symbol
// failures are collected, not fatal.
func (r *Runner) Backfill(ctx context.Context, from, to time.Time) (int, []error) {
	symbols, err := r.store.ListActiveSymbols(ctx, r.market)
	if err != nil {
		return 0, []error{errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to list universe", err)}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		succeeded int
		failures  []error
	)

	sem := make(chan struct{}, r.config.Workers)

	for _, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}

		go func(sym types.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()

			bars, err := r.provider.GetDailyBars(ctx, sym.Symbol, sym.Market, from, to)
			if err == nil {
				err = r.store.UpsertBars(ctx, sym.Symbol, sym.Market, bars)
			}

			mu.Lock()
			defer mu.Unlock()

			completed++
			if err != nil {
				failures = append(failures, errors.NewSymbolError(sym.Symbol, string(sym.Market), err))
			} else {
				succeeded++
			}

			r.report("backfill", completed, len(symbols))
		}(sym)
	}

	wg.Wait()

	return succeeded, failures
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
