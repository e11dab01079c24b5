package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// FeatureSnapshot is one day's computed technical features for a symbol.
// Any indicator field may be None when the bar history is too short for its
// period; a missing value is a degenerate result, not an error.
//
// Snapshots are immutable once written except for idempotent recomputation:
// the same (symbol, market, date) with the same bar window must produce an
// identical snapshot.
type FeatureSnapshot struct {
	Symbol string    `json:"symbol"`
	Market Market    `json:"market"`
	Date   time.Time `json:"date"`

	ClosePrice float64 `json:"close_price"`
	Volume     float64 `json:"volume"`

	SMA20  optional.Option[float64] `json:"sma_20"`
	SMA50  optional.Option[float64] `json:"sma_50"`
	SMA200 optional.Option[float64] `json:"sma_200"`
	EMA12  optional.Option[float64] `json:"ema_12"`
	EMA26  optional.Option[float64] `json:"ema_26"`

	RSI14         optional.Option[float64] `json:"rsi_14"`
	MACD          optional.Option[float64] `json:"macd"`
	MACDSignal    optional.Option[float64] `json:"macd_signal"`
	MACDHistogram optional.Option[float64] `json:"macd_histogram"`

	BBUpper  optional.Option[float64] `json:"bb_upper"`
	BBMiddle optional.Option[float64] `json:"bb_middle"`
	BBLower  optional.Option[float64] `json:"bb_lower"`
	ATR14    optional.Option[float64] `json:"atr_14"`

	VolumeSMA20 optional.Option[float64] `json:"volume_sma_20"`
	VolumeRatio optional.Option[float64] `json:"volume_ratio"`

	// EngineVersion records which engine release produced this snapshot so a
	// later release can decide whether to recompute it.
	EngineVersion string `json:"engine_version"`
}

// EMAState carries the previous-day EMA values needed to continue the MACD
// signal line across pipeline runs. The state is owned per (symbol, market)
// and advances by exactly one trading day per feature calculation.
type EMAState struct {
	Symbol    string                   `json:"symbol"`
	Market    Market                   `json:"market"`
	Date      time.Time                `json:"date"`
	FastEMA   optional.Option[float64] `json:"fast_ema"`
	SlowEMA   optional.Option[float64] `json:"slow_ema"`
	SignalEMA optional.Option[float64] `json:"signal_ema"`
}
