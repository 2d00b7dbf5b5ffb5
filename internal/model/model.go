// Package model holds the plain domain records shared across the
// simulation engine, the bar store, and the broadcast layer.
package model

import "time"

// Sector groups instruments that share a correlated shock.
type Sector struct {
	Code string
	Name string
	Beta float64 // sector beta applied to the sector shock
}

// Instrument is a single simulated stock.
type Instrument struct {
	Symbol       string
	Name         string
	SectorCode   string
	MarketCap    int64 // smallest currency unit
	Beta         float64
	SigmaAnnual  float64 // idiosyncratic annualised volatility

	// Dynamic state, mutated once per tick by the price engine.
	Price        float64
	PrevClose    float64
	Change       float64
	ChangePct    float64
	UpdatedAt    time.Time
}

// IndexMethod selects how an index aggregates its constituents.
type IndexMethod string

const (
	MethodCapWeighted   IndexMethod = "CAP_WEIGHTED"
	MethodEqualWeighted IndexMethod = "EQUAL_WEIGHTED"
)

// Index is a market-cap-weighted (or equal-weighted) basket.
type Index struct {
	Code       string
	Name       string
	BaseValue  float64
	Method     IndexMethod
	Value      float64
	PrevClose  float64
	Change     float64
	ChangePct  float64
	UpdatedAt  time.Time
}

// IndexConstituent is one weighted member of an Index.
type IndexConstituent struct {
	IndexCode string
	Symbol    string
	Weight    float64
	Active    bool
}

// TargetType distinguishes instrument bars from index bars.
type TargetType string

const (
	TargetStock TargetType = "STOCK"
	TargetIndex TargetType = "INDEX"
)

// Bar is one OHLCV observation for an instrument or index at a given
// interval boundary.
type Bar struct {
	TargetType TargetType
	TargetCode string
	Interval   string // e.g. "1t" (one tick), "1m", "1d"
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	Turnover   float64
	ChangePct  float64
	Capped     bool
}

// Regime is the global market state driving drift and volatility.
type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
)

// MarketRegime is one row in the regime history; exactly one row at a
// time has IsCurrent set.
type MarketRegime struct {
	ID                int64
	Regime            Regime
	StartTime         time.Time
	EndTime           *time.Time
	DailyDrift        float64
	VolatilityMult    float64
	IsCurrent         bool
}
