package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// SectorStrength is the composite daily strength of one sector.
// Recomputed in full each day from that day's feature snapshots; sectors with
// no snapshots on the date are excluded rather than scored zero.
type SectorStrength struct {
	Sector      string    `json:"sector"`
	Date        time.Time `json:"date"`
	Market      Market    `json:"market"`
	SymbolCount int       `json:"symbol_count"`

	AvgRSI optional.Option[float64] `json:"avg_rsi"`
	// AvgSMA20Dist is the mean percent distance of close from SMA20.
	AvgSMA20Dist optional.Option[float64] `json:"avg_sma20_dist"`
	AvgVolRatio  optional.Option[float64] `json:"avg_vol_ratio"`

	StrongSymbols int `json:"strong_symbols"` // RSI > 60
	WeakSymbols   int `json:"weak_symbols"`   // RSI < 40

	Score float64 `json:"score"` // 0-100 composite
	Rank  int     `json:"rank"`  // 1-based position in the daily ordering
}
