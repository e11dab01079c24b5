// Package stoploss maintains per-position trailing stops with a hard
// invariant: a persisted stop never decreases over the life of the position.
package stoploss

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds the risk parameters of the stop engine. All percentages are
// fractions (0.10 = 10%).
type Config struct {
	// DefaultStopPercent is the flat stop distance used when ATR is
	// unavailable, and the initial stop distance below the buy price.
	DefaultStopPercent decimal.Decimal
	// ATRMultiplier scales ATR into a stop distance.
	ATRMultiplier decimal.Decimal
	// MinStopPercent is the tightest allowed stop distance.
	MinStopPercent decimal.Decimal
	// MaxStopPercent is the widest allowed stop distance.
	MaxStopPercent decimal.Decimal
}

// DefaultConfig returns the standard risk profile: 10% fallback stop,
// 2x ATR trailing distance clamped to [5%, 20%].
func DefaultConfig() Config {
	return Config{
		DefaultStopPercent: decimal.NewFromFloat(0.10),
		ATRMultiplier:      decimal.NewFromFloat(2.0),
		MinStopPercent:     decimal.NewFromFloat(0.05),
		MaxStopPercent:     decimal.NewFromFloat(0.20),
	}
}

// Validate fails fast on an unusable risk profile. Invalid configuration is
// never silently defaulted.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)

	for _, p := range []decimal.Decimal{c.DefaultStopPercent, c.MinStopPercent, c.MaxStopPercent} {
		if p.LessThanOrEqual(decimal.Zero) || p.GreaterThanOrEqual(one) {
			return errors.Newf(errors.ErrCodeInvalidRiskProfile, "stop percent %s out of range (0, 1)", p)
		}
	}

	if c.MinStopPercent.GreaterThanOrEqual(c.MaxStopPercent) {
		return errors.Newf(errors.ErrCodeInvalidRiskProfile,
			"min stop percent %s must be below max stop percent %s", c.MinStopPercent, c.MaxStopPercent)
	}

	if c.ATRMultiplier.LessThanOrEqual(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidRiskProfile, "ATR multiplier %s must be positive", c.ATRMultiplier)
	}

	return nil
}

// Engine computes stop-loss candidates. It is a pure function of its inputs;
// persistence and locking live in Service.
type Engine struct {
	config Config
}

// NewEngine creates an Engine, validating the risk profile up front.
func NewEngine(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Engine{config: config}, nil
}

// Compute derives the stop calculation for one position on one day.
//
// With a usable ATR the candidate stop trails the price by ATRMultiplier
// true ranges, clamped so the implied distance stays within
// [MinStopPercent, MaxStopPercent]. Without ATR it falls back to the flat
// percentage stop. Against existing state the ratchet applies: the stored
// stop only ever moves up, and ShouldUpdate reports whether the candidate
// actually improved on it. A lower candidate is discarded, not persisted.
func (e *Engine) Compute(
	position types.Position,
	snapshot types.FeatureSnapshot,
	existing optional.Option[types.StopLossState],
	date time.Time,
) types.StopLossCalculation {
	currentPrice := decimal.NewFromFloat(snapshot.ClosePrice)
	one := decimal.NewFromInt(1)

	initialStopLoss := position.BuyPrice.Mul(one.Sub(e.config.DefaultStopPercent))
	if existing.IsSome() {
		initialStopLoss = existing.Unwrap().InitialStopLoss
	}

	var (
		recommended   decimal.Decimal
		stopType      types.StopLossType
		atrMultiplier = e.config.ATRMultiplier
	)

	atr := snapshot.ATR14

	if atr.IsSome() && atr.Unwrap() > 0 {
		atrDistance := decimal.NewFromFloat(atr.Unwrap()).Mul(atrMultiplier)
		recommended = currentPrice.Sub(atrDistance)
		stopType = types.StopATRTrailing

		// Keep the stop distance inside the configured band.
		widest := currentPrice.Mul(one.Sub(e.config.MaxStopPercent))
		tightest := currentPrice.Mul(one.Sub(e.config.MinStopPercent))

		if recommended.LessThan(widest) {
			recommended = widest
			stopType = types.StopATRTrailingCapped
		} else if recommended.GreaterThan(tightest) {
			recommended = tightest
			stopType = types.StopATRTrailingMin
		}
	} else {
		recommended = currentPrice.Mul(one.Sub(e.config.DefaultStopPercent))
		stopType = types.StopPercentage
		atrMultiplier = decimal.Zero
	}

	var (
		currentStopLoss decimal.Decimal
		shouldUpdate    bool
	)

	if existing.IsSome() {
		existingStop := existing.Unwrap().CurrentStopLoss
		currentStopLoss = decimal.Max(existingStop, recommended)
		shouldUpdate = recommended.GreaterThan(existingStop)
	} else {
		currentStopLoss = decimal.Max(initialStopLoss, recommended)
		shouldUpdate = true
	}

	stopLossPercent := decimal.Zero
	if currentPrice.IsPositive() {
		stopLossPercent = currentPrice.Sub(currentStopLoss).Div(currentPrice).Mul(decimal.NewFromInt(100))
	}

	riskAmount := currentPrice.Sub(currentStopLoss).Mul(position.Quantity)

	return types.StopLossCalculation{
		PortfolioID:         position.PortfolioID,
		SymbolID:            position.SymbolID,
		Date:                date,
		CurrentPrice:        currentPrice,
		BuyPrice:            position.BuyPrice,
		InitialStopLoss:     initialStopLoss.Round(2),
		CurrentStopLoss:     currentStopLoss.Round(2),
		RecommendedStopLoss: recommended.Round(2),
		ATR:                 atr,
		ATRMultiplier:       atrMultiplier,
		StopLossPercent:     stopLossPercent.Round(2),
		StopLossType:        stopType,
		ShouldUpdate:        shouldUpdate,
		RiskAmount:          riskAmount.Round(2),
	}
}

// StateFromCalculation builds the persistable state record for a
// calculation that reported ShouldUpdate.
func StateFromCalculation(calc types.StopLossCalculation) types.StopLossState {
	return types.StopLossState{
		PortfolioID:     calc.PortfolioID,
		SymbolID:        calc.SymbolID,
		InitialStopLoss: calc.InitialStopLoss,
		CurrentStopLoss: calc.CurrentStopLoss,
		LastUpdatedDate: calc.Date,
		StopLossType:    calc.StopLossType,
		ATRMultiplier:   calc.ATRMultiplier,
	}
}
