package types

import (
	"fmt"
	"time"
)

// Market identifies the exchange a symbol trades on.
type Market string

const (
	MarketUS   Market = "US"
	MarketTASE Market = "TASE"
)

// AllMarkets lists every supported market code.
var AllMarkets = []Market{MarketUS, MarketTASE}

// ParseMarket validates a market code string.
func ParseMarket(s string) (Market, error) {
	for _, m := range AllMarkets {
		if string(m) == s {
			return m, nil
		}
	}

	return "", fmt.Errorf("unknown market code %q", s)
}

// Bar is one trading day's OHLCV for a symbol. Bars are immutable and are
// the source of truth for every derived value in the engine.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Symbol is one tracked (symbol, market) pair in the universe.
type Symbol struct {
	Symbol   string `json:"symbol"`
	Market   Market `json:"market"`
	IsActive bool   `json:"is_active"`
}
