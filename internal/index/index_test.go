package index

import (
	"testing"
	"time"

	"github.com/ndrandal/marketsim/internal/model"
)

func fixture() ([]model.Index, []model.IndexConstituent) {
	indices := []model.Index{
		{Code: "MKT3", Name: "Market 3", BaseValue: 1000, Method: model.MethodCapWeighted},
	}
	constituents := []model.IndexConstituent{
		{IndexCode: "MKT3", Symbol: "AAA", Weight: 0.5, Active: true},
		{IndexCode: "MKT3", Symbol: "BBB", Weight: 0.3, Active: true},
		{IndexCode: "MKT3", Symbol: "CCC", Weight: 0.2, Active: true},
	}
	return indices, constituents
}

func TestRecomputeWeightedAverage(t *testing.T) {
	indices, constituents := fixture()
	e := NewEngine(indices, constituents)

	prices := map[string]float64{"AAA": 100, "BBB": 100, "CCC": 100}
	bars, errs := e.Recompute(prices, time.Now())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}

	// All constituents at the same price: normalized weighted average is
	// that price, scaled by the fixed K.
	want := 100.0 * indexScalingFactor
	if bars[0].Close != want {
		t.Fatalf("index value = %f, want %f", bars[0].Close, want)
	}
}

func TestRecomputeSkipsBelowCoverageThreshold(t *testing.T) {
	indices, constituents := fixture()
	e := NewEngine(indices, constituents)

	// Only 1 of 3 active constituents priced: 33% coverage, below 80%.
	prices := map[string]float64{"AAA": 100}
	bars, errs := e.Recompute(prices, time.Now())
	if len(bars) != 0 {
		t.Fatalf("expected no bars below coverage threshold, got %d", len(bars))
	}
	if len(errs) != 1 {
		t.Fatalf("expected one coverage warning, got %d", len(errs))
	}
}

func TestRecomputeExactlyAtThreshold(t *testing.T) {
	indices := []model.Index{{Code: "FIVE", Name: "Five", BaseValue: 100}}
	constituents := make([]model.IndexConstituent, 5)
	for i := range constituents {
		constituents[i] = model.IndexConstituent{IndexCode: "FIVE", Symbol: string(rune('A' + i)), Weight: 0.2, Active: true}
	}
	e := NewEngine(indices, constituents)

	prices := map[string]float64{"A": 10, "B": 10, "C": 10, "D": 10}
	bars, errs := e.Recompute(prices, time.Now())
	if len(errs) != 0 {
		t.Fatalf("4/5 = 80%% coverage should clear the threshold, got errors: %v", errs)
	}
	if len(bars) != 1 {
		t.Fatalf("expected one bar at exactly the coverage threshold, got %d", len(bars))
	}
}

func TestRecomputeChangePercent(t *testing.T) {
	indices, constituents := fixture()
	indices[0].PrevClose = 1000
	e := NewEngine(indices, constituents)

	prices := map[string]float64{"AAA": 110, "BBB": 110, "CCC": 110}
	bars, errs := e.Recompute(prices, time.Now())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	current := 110.0 * indexScalingFactor
	wantPct := 100 * (current/1000 - 1)
	if bars[0].ChangePct != wantPct {
		t.Fatalf("change pct = %f, want %f", bars[0].ChangePct, wantPct)
	}
}

func TestRecomputeSkipsInactiveConstituents(t *testing.T) {
	indices, constituents := fixture()
	constituents[2].Active = false // CCC inactive, drops out of the weight base

	e := NewEngine(indices, constituents)
	prices := map[string]float64{"AAA": 100, "BBB": 200}
	bars, errs := e.Recompute(prices, time.Now())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := (0.5*100 + 0.3*200) / (0.5 + 0.3) * indexScalingFactor
	if bars[0].Close != want {
		t.Fatalf("index value = %f, want %f", bars[0].Close, want)
	}
}

func TestSnapshotReturnsCurrentState(t *testing.T) {
	indices, constituents := fixture()
	e := NewEngine(indices, constituents)

	prices := map[string]float64{"AAA": 100, "BBB": 100, "CCC": 100}
	e.Recompute(prices, time.Now())

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d indices, want 1", len(snap))
	}
	if snap[0].Value == 0 {
		t.Fatal("snapshot should reflect the recomputed value")
	}
}
