// Package store persists the current snapshot and append-only history of
// instruments and indices behind a relational schema.
package store

import "time"

// StockRow is the `stocks` table: the live quote, upserted once per tick.
// Static descriptive attributes live separately in StockMetadataRow.
type StockRow struct {
	Symbol string `gorm:"primaryKey;column:symbol"`

	Price     float64
	PrevClose float64 `gorm:"column:prev_close"`
	Change    float64
	ChangePct float64   `gorm:"column:change_pct"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (StockRow) TableName() string { return "stocks" }

// StockMetadataRow is the `stock_metadata` table: the static attributes
// of an instrument, seeded once and never touched by the tick loop.
type StockMetadataRow struct {
	Symbol     string `gorm:"primaryKey;column:symbol"`
	Name       string
	SectorCode string `gorm:"column:sector_code"`
	MarketCap  int64  `gorm:"column:market_cap"`
	Beta       float64
	Sigma      float64 `gorm:"column:sigma_annual"`
}

func (StockMetadataRow) TableName() string { return "stock_metadata" }

// SectorRow is the `sectors` table.
type SectorRow struct {
	Code string `gorm:"primaryKey;column:code"`
	Name string
	Beta float64
}

func (SectorRow) TableName() string { return "sectors" }

// IndexRow is the `indices` table.
type IndexRow struct {
	Code      string `gorm:"primaryKey;column:code"`
	Name      string
	BaseValue float64 `gorm:"column:base_value"`
	Method    string

	Value     float64
	PrevClose float64   `gorm:"column:prev_close"`
	Change    float64
	ChangePct float64   `gorm:"column:change_pct"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (IndexRow) TableName() string { return "indices" }

// IndexConstituentRow is the `index_constituents` table.
type IndexConstituentRow struct {
	IndexCode string `gorm:"primaryKey;column:index_code"`
	Symbol    string `gorm:"primaryKey;column:symbol"`
	Weight    float64
	Active    bool
}

func (IndexConstituentRow) TableName() string { return "index_constituents" }

// MarketStateRow is the `market_states` table, append-only with a rolling
// IsCurrent flag.
type MarketStateRow struct {
	ID             int64 `gorm:"primaryKey;column:id"`
	Regime         string
	StartTime      time.Time  `gorm:"column:start_time"`
	EndTime        *time.Time `gorm:"column:end_time"`
	DailyDrift     float64    `gorm:"column:daily_drift"`
	VolatilityMult float64    `gorm:"column:volatility_mult"`
	IsCurrent      bool       `gorm:"column:is_current"`
}

func (MarketStateRow) TableName() string { return "market_states" }

// PriceDataRow is the `price_data` table: append-only OHLCV history keyed
// by (target_type, target_code, timestamp).
type PriceDataRow struct {
	TargetType string    `gorm:"primaryKey;column:target_type"`
	TargetCode string    `gorm:"primaryKey;column:target_code"`
	Timestamp  time.Time `gorm:"primaryKey;column:timestamp"`
	Interval   string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	Turnover   float64
	ChangePct  float64 `gorm:"column:change_pct"`
}

func (PriceDataRow) TableName() string { return "price_data" }

// RNGStateRow is the `rng_state` table: a single persisted row holding
// the shock generator's state across process restarts.
type RNGStateRow struct {
	ID        int64 `gorm:"primaryKey;column:id"`
	Seed      int64
	State     []byte
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (RNGStateRow) TableName() string { return "rng_state" }

// AllModels lists every row type, used for migration.
func AllModels() []any {
	return []any{
		&StockRow{},
		&StockMetadataRow{},
		&SectorRow{},
		&IndexRow{},
		&IndexConstituentRow{},
		&MarketStateRow{},
		&PriceDataRow{},
		&RNGStateRow{},
	}
}
