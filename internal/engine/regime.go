package engine

import (
	"sync"
	"time"

	"github.com/ndrandal/marketsim/internal/model"
)

const (
	regimeStayProb = 0.70

	bullVolMult     = 1.2
	bearVolMult     = 1.5
	sidewaysVolMult = 1.0
)

var regimeNeighbors = map[model.Regime][]model.Regime{
	model.RegimeBull:     {model.RegimeSideways, model.RegimeBear},
	model.RegimeBear:     {model.RegimeSideways, model.RegimeBull},
	model.RegimeSideways: {model.RegimeBull, model.RegimeBear},
}

var driftBand = map[model.Regime][2]float64{
	model.RegimeBull:     {0.003, 0.010},
	model.RegimeBear:     {-0.010, -0.003},
	model.RegimeSideways: {-0.002, 0.002},
}

var volMult = map[model.Regime]float64{
	model.RegimeBull:     bullVolMult,
	model.RegimeBear:     bearVolMult,
	model.RegimeSideways: sidewaysVolMult,
}

// RegimeController holds the current market regime and evaluates
// Markov-kernel transitions subject to a minimum dwell time.
type RegimeController struct {
	mu       sync.RWMutex
	shocks   *ShockGenerator
	minDwell time.Duration
	nextID   int64
	current  model.MarketRegime
}

// NewRegimeController starts in SIDEWAYS.
func NewRegimeController(shocks *ShockGenerator, minDwellDays int) *RegimeController {
	now := time.Now()
	rc := &RegimeController{
		shocks:   shocks,
		minDwell: time.Duration(minDwellDays) * 24 * time.Hour,
		nextID:   1,
	}
	rc.current = model.MarketRegime{
		ID:             rc.nextID,
		Regime:         model.RegimeSideways,
		StartTime:      now,
		DailyDrift:     0,
		VolatilityMult: sidewaysVolMult,
		IsCurrent:      true,
	}
	rc.nextID++
	return rc
}

// Current returns a copy of the active regime row.
func (rc *RegimeController) Current() model.MarketRegime {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.current
}

// Transition attempts a regime change. With force=false it is a no-op
// before MinDwell has elapsed. It returns the (possibly unchanged) current
// regime and whether a transition actually occurred.
func (rc *RegimeController) Transition(force bool) (model.MarketRegime, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := time.Now()
	if !force && now.Sub(rc.current.StartTime) < rc.minDwell {
		return rc.current, false
	}

	next := rc.current.Regime
	if rc.shocks.Uniform() >= regimeStayProb {
		neighbors := regimeNeighbors[rc.current.Regime]
		next = neighbors[rc.shocks.UniformInt(len(neighbors))]
	}

	if next == rc.current.Regime && !force {
		// Stayed; refresh drift within the band without rotating rows.
		rc.current.DailyDrift = rc.sampleDrift(next)
		return rc.current, false
	}

	end := now
	rc.current.EndTime = &end
	rc.current.IsCurrent = false

	drift := rc.sampleDrift(next)
	rc.current = model.MarketRegime{
		ID:             rc.nextID,
		Regime:         next,
		StartTime:      now,
		DailyDrift:     drift,
		VolatilityMult: volMult[next],
		IsCurrent:      true,
	}
	rc.nextID++
	return rc.current, true
}

func (rc *RegimeController) sampleDrift(r model.Regime) float64 {
	band := driftBand[r]
	lo, hi := band[0], band[1]
	return lo + rc.shocks.Uniform()*(hi-lo)
}

// ForceRegime is a test/ops helper to pin the controller to a specific
// regime immediately, bypassing the Markov draw and min-dwell gate.
func (rc *RegimeController) ForceRegime(r model.Regime) model.MarketRegime {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := time.Now()
	end := now
	rc.current.EndTime = &end
	rc.current.IsCurrent = false

	rc.current = model.MarketRegime{
		ID:             rc.nextID,
		Regime:         r,
		StartTime:      now,
		DailyDrift:     rc.sampleDrift(r),
		VolatilityMult: volMult[r],
		IsCurrent:      true,
	}
	rc.nextID++
	return rc.current
}
