package engine

import (
	"testing"
	"time"

	"github.com/ndrandal/marketsim/internal/model"
)

func TestNewRegimeControllerStartsSideways(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(1), 7)
	cur := rc.Current()
	if cur.Regime != model.RegimeSideways {
		t.Fatalf("initial regime = %v, want SIDEWAYS", cur.Regime)
	}
	if !cur.IsCurrent {
		t.Fatal("initial regime should be marked current")
	}
	if cur.EndTime != nil {
		t.Fatal("initial regime should have a nil EndTime")
	}
}

func TestTransitionRespectsMinDwell(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(2), 7)
	before := rc.Current()

	_, changed := rc.Transition(false)
	if changed {
		t.Fatal("transition should not fire before min dwell has elapsed")
	}
	after := rc.Current()
	if after.ID != before.ID {
		t.Fatalf("regime row changed despite min dwell gate: %d -> %d", before.ID, after.ID)
	}
}

func TestForceRegimeBypassesDwell(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(3), 7)
	before := rc.Current()

	r := rc.ForceRegime(model.RegimeBull)
	if r.Regime != model.RegimeBull {
		t.Fatalf("ForceRegime(BULL) returned %v", r.Regime)
	}
	if r.ID == before.ID {
		t.Fatal("ForceRegime should open a new regime row")
	}
	if r.VolatilityMult != bullVolMult {
		t.Fatalf("BULL volatility multiplier = %f, want %f", r.VolatilityMult, bullVolMult)
	}
}

func TestForceRegimeDriftWithinBand(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(4), 7)
	for i := 0; i < 200; i++ {
		r := rc.ForceRegime(model.RegimeBull)
		band := driftBand[model.RegimeBull]
		if r.DailyDrift < band[0] || r.DailyDrift > band[1] {
			t.Fatalf("BULL drift %f outside band [%f, %f]", r.DailyDrift, band[0], band[1])
		}
	}
}

func TestTransitionDistributionStaysMostOften(t *testing.T) {
	// Force the min dwell window open, then sample many transitions from a
	// fixed regime and verify the stay/leave split is roughly 70/30.
	rc := NewRegimeController(NewShockGenerator(5), 0)
	stayed := 0
	const n = 5000
	for i := 0; i < n; i++ {
		before := rc.Current().Regime
		r, _ := rc.Transition(true)
		if r.Regime == before {
			stayed++
		}
	}
	frac := float64(stayed) / float64(n)
	if frac < 0.60 || frac > 0.80 {
		t.Fatalf("stay fraction = %f, want close to 0.70", frac)
	}
}

func TestTransitionClosesPreviousRow(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(6), 0)
	before := rc.Current()

	var after model.MarketRegime
	for i := 0; i < 50; i++ {
		r, changed := rc.Transition(true)
		if changed {
			after = r
			break
		}
	}
	if after.ID == 0 {
		t.Fatal("expected at least one transition within 50 forced attempts")
	}
	if after.ID == before.ID {
		t.Fatal("transition should allocate a new regime ID")
	}
}

func TestMinDwellDurationComputed(t *testing.T) {
	rc := NewRegimeController(NewShockGenerator(7), 3)
	if rc.minDwell != 3*24*time.Hour {
		t.Fatalf("minDwell = %v, want 72h", rc.minDwell)
	}
}
