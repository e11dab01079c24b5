// Package sector rolls per-symbol features up into a daily composite
// strength score per sector.
package sector

import (
	"math"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
)

// Aggregator groups one day's feature snapshots by sector tag and scores
// each group. It is stateless; yesterday's strengths are simply replaced.
type Aggregator struct{}

// NewAggregator creates an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate scores each sector present in snapshots for the given date.
//
// tags maps symbol to sector; symbols without a tag are skipped. When a
// market is given, snapshots from other markets are ignored. A sector with
// no usable snapshots on the date is excluded from the output entirely
// rather than scored zero. The result is ordered by score descending with a
// stable sort, so equal scores keep first-seen input order; Rank is the
// 1-based position in that ordering.
func (a *Aggregator) Aggregate(
	date time.Time,
	market optional.Option[types.Market],
	snapshots []types.FeatureSnapshot,
	tags map[string]string,
) []types.SectorStrength {
	groups := map[string][]types.FeatureSnapshot{}
	order := []string{}

	for _, snap := range snapshots {
		if !snap.Date.Equal(date) {
			continue
		}

		if market.IsSome() && snap.Market != market.Unwrap() {
			continue
		}

		sectorTag, ok := tags[snap.Symbol]
		if !ok || sectorTag == "" {
			continue
		}

		if _, seen := groups[sectorTag]; !seen {
			order = append(order, sectorTag)
		}

		groups[sectorTag] = append(groups[sectorTag], snap)
	}

	strengths := make([]types.SectorStrength, 0, len(order))

	for _, sectorTag := range order {
		strengths = append(strengths, a.scoreSector(sectorTag, date, market, groups[sectorTag]))
	}

	sort.SliceStable(strengths, func(i, j int) bool {
		return strengths[i].Score > strengths[j].Score
	})

	for i := range strengths {
		strengths[i].Rank = i + 1
	}

	return strengths
}

func (a *Aggregator) scoreSector(
	sectorTag string,
	date time.Time,
	market optional.Option[types.Market],
	snapshots []types.FeatureSnapshot,
) types.SectorStrength {
	rsiValues := []float64{}
	sma20Dists := []float64{}
	volRatios := []float64{}

	for _, snap := range snapshots {
		if snap.RSI14.IsSome() {
			rsiValues = append(rsiValues, snap.RSI14.Unwrap())
		}

		if snap.ClosePrice != 0 && snap.SMA20.IsSome() && snap.SMA20.Unwrap() != 0 {
			sma20 := snap.SMA20.Unwrap()
			sma20Dists = append(sma20Dists, ((snap.ClosePrice-sma20)/sma20)*100)
		}

		if snap.VolumeRatio.IsSome() {
			volRatios = append(volRatios, snap.VolumeRatio.Unwrap())
		}
	}

	avgRSI := mean(rsiValues)
	avgSMA20Dist := mean(sma20Dists)
	avgVolRatio := mean(volRatios)

	strong := 0
	weak := 0

	for _, rsi := range rsiValues {
		if rsi > 60 {
			strong++
		} else if rsi < 40 {
			weak++
		}
	}

	total := float64(len(snapshots))
	score := 50.0

	if avgRSI.IsSome() {
		score += (avgRSI.Unwrap() - 50) * 0.5
	}

	if avgSMA20Dist.IsSome() {
		score += avgSMA20Dist.Unwrap() * 0.5
	}

	if avgVolRatio.IsSome() {
		score += (avgVolRatio.Unwrap() - 1) * 10
	}

	score += (float64(strong) / total) * 10
	score -= (float64(weak) / total) * 10

	score = math.Max(0, math.Min(100, score))

	resolvedMarket := types.Market("")
	if market.IsSome() {
		resolvedMarket = market.Unwrap()
	} else if len(snapshots) > 0 {
		resolvedMarket = snapshots[0].Market
	}

	return types.SectorStrength{
		Sector:        sectorTag,
		Date:          date,
		Market:        resolvedMarket,
		SymbolCount:   len(snapshots),
		AvgRSI:        round2(avgRSI),
		AvgSMA20Dist:  round2(avgSMA20Dist),
		AvgVolRatio:   round2(avgVolRatio),
		StrongSymbols: strong,
		WeakSymbols:   weak,
		Score:         math.Round(score*100) / 100,
	}
}

func mean(values []float64) optional.Option[float64] {
	if len(values) == 0 {
		return optional.None[float64]()
	}

	total := 0.0
	for _, v := range values {
		total += v
	}

	return optional.Some(total / float64(len(values)))
}

func round2(o optional.Option[float64]) optional.Option[float64] {
	if o.IsNone() {
		return o
	}

	return optional.Some(math.Round(o.Unwrap()*100) / 100)
}
