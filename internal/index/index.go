// Package index recomputes market-cap-weighted (or equal-weighted) index
// values from a fresh instrument price snapshot.
package index

import (
	"fmt"
	"time"

	"github.com/ndrandal/marketsim/internal/model"
)

// minConstituentCoverage is the fraction of active constituents that must
// have a known price before an index bar is produced. The live tick path
// always has full coverage; this threshold only bites during historical
// backfill over partial data.
const minConstituentCoverage = 0.80

// indexScalingFactor is the fixed scaling constant K: the normalized
// weighted-average constituent price is scaled by 10 to land in the
// same numeric range as an index's BaseValue.
const indexScalingFactor = 10.0

// Engine recomputes every configured index from a price snapshot.
type Engine struct {
	indices      map[string]*model.Index
	constituents map[string][]model.IndexConstituent // by index code
}

// NewEngine builds an index engine from the catalog's index and
// constituent fixtures.
func NewEngine(indices []model.Index, constituents []model.IndexConstituent) *Engine {
	idxMap := make(map[string]*model.Index, len(indices))
	for i := range indices {
		idx := indices[i]
		idxMap[idx.Code] = &idx
	}
	byIndex := make(map[string][]model.IndexConstituent)
	for _, c := range constituents {
		byIndex[c.IndexCode] = append(byIndex[c.IndexCode], c)
	}
	return &Engine{indices: idxMap, constituents: byIndex}
}

// Snapshot returns a consistent copy of every index's current state.
func (e *Engine) Snapshot() []model.Index {
	out := make([]model.Index, 0, len(e.indices))
	for _, idx := range e.indices {
		out = append(out, *idx)
	}
	return out
}

// Recompute produces a fresh value (and bar) for every index given the
// current instrument prices. Indices whose active-constituent price
// coverage falls below minConstituentCoverage are skipped and reported.
func (e *Engine) Recompute(prices map[string]float64, ts time.Time) ([]model.Bar, []error) {
	var bars []model.Bar
	var errs []error

	for code, idx := range e.indices {
		cs := e.constituents[code]
		active := 0
		covered := 0
		weightedSum := 0.0
		totalWeight := 0.0

		for _, c := range cs {
			if !c.Active {
				continue
			}
			active++
			w := c.Weight
			if idx.Method == model.MethodEqualWeighted {
				w = 1
			}
			totalWeight += w
			if p, ok := prices[c.Symbol]; ok {
				covered++
				weightedSum += w * p
			}
		}

		if active == 0 {
			continue
		}
		if float64(covered)/float64(active) < minConstituentCoverage {
			errs = append(errs, fmt.Errorf("index %s: only %d/%d constituents priced, skipping bar", code, covered, active))
			continue
		}
		if totalWeight == 0 {
			continue
		}

		normalized := weightedSum / totalWeight
		current := normalized * indexScalingFactor

		prevClose := idx.PrevClose
		if prevClose == 0 {
			prevClose = idx.BaseValue
		}

		change := current - prevClose
		changePct := 0.0
		if prevClose > 0 {
			changePct = 100 * (current/prevClose - 1)
		}

		idx.Value = current
		idx.Change = change
		idx.ChangePct = changePct
		idx.UpdatedAt = ts

		open := prevClose
		bars = append(bars, model.Bar{
			TargetType: model.TargetIndex,
			TargetCode: code,
			Interval:   "1t",
			Timestamp:  ts,
			Open:       open,
			High:       maxF(open, current),
			Low:        minF(open, current),
			Close:      current,
			ChangePct:  changePct,
		})
	}

	return bars, errs
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
