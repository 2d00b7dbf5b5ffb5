package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ndrandal/marketsim/internal/catalog"
	"github.com/ndrandal/marketsim/internal/model"
)

// Store is the relational BarStore: a current-snapshot table per entity
// plus an append-only history table, backed by MySQL via gorm.
type Store struct {
	db *gorm.DB
}

// New opens a MySQL connection pool using the given DSN.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	log.Println("connected to MySQL")
	return &Store{db: db}, nil
}

// Migrate creates the relational schema if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// SeedCatalog upserts the static sector/instrument/index fixture so a
// fresh database has something to tick against. It does not touch
// price_data or market_states.
func (s *Store) SeedCatalog(ctx context.Context, cat catalog.Catalog) error {
	db := s.db.WithContext(ctx)

	for _, sec := range cat.Sectors {
		row := SectorRow{Code: sec.Code, Name: sec.Name, Beta: sec.Beta}
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed sector %s: %w", sec.Code, err)
		}
	}

	for _, inst := range cat.Instruments {
		meta := StockMetadataRow{
			Symbol: inst.Symbol, Name: inst.Name, SectorCode: inst.SectorCode,
			MarketCap: inst.MarketCap, Beta: inst.Beta, Sigma: inst.SigmaAnnual,
		}
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&meta).Error; err != nil {
			return fmt.Errorf("seed stock metadata %s: %w", inst.Symbol, err)
		}

		row := StockRow{
			Symbol: inst.Symbol, Price: inst.Price, PrevClose: inst.PrevClose, UpdatedAt: time.Now(),
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed stock %s: %w", inst.Symbol, err)
		}
	}

	for _, idx := range cat.Indices {
		row := IndexRow{
			Code: idx.Code, Name: idx.Name, BaseValue: idx.BaseValue, Method: string(idx.Method),
			Value: idx.Value, PrevClose: idx.PrevClose, UpdatedAt: time.Now(),
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed index %s: %w", idx.Code, err)
		}
	}

	for _, c := range cat.Constituents {
		row := IndexConstituentRow{IndexCode: c.IndexCode, Symbol: c.Symbol, Weight: c.Weight, Active: c.Active}
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed constituent %s/%s: %w", c.IndexCode, c.Symbol, err)
		}
	}

	return nil
}

// SnapshotReadAll returns the current dynamic state for every instrument,
// joining the `stocks` quote against its `stock_metadata` row.
func (s *Store) SnapshotReadAll(ctx context.Context) ([]model.Instrument, error) {
	db := s.db.WithContext(ctx)

	var rows []StockRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read stock snapshot: %w", err)
	}
	var metaRows []StockMetadataRow
	if err := db.Find(&metaRows).Error; err != nil {
		return nil, fmt.Errorf("read stock metadata: %w", err)
	}
	meta := make(map[string]StockMetadataRow, len(metaRows))
	for _, m := range metaRows {
		meta[m.Symbol] = m
	}

	out := make([]model.Instrument, len(rows))
	for i, r := range rows {
		m := meta[r.Symbol]
		out[i] = model.Instrument{
			Symbol: r.Symbol, Name: m.Name, SectorCode: m.SectorCode,
			MarketCap: m.MarketCap, Beta: m.Beta, SigmaAnnual: m.Sigma,
			Price: r.Price, PrevClose: r.PrevClose, Change: r.Change,
			ChangePct: r.ChangePct, UpdatedAt: r.UpdatedAt,
		}
	}
	return out, nil
}

// SnapshotWriteBatch upserts the dynamic state of a batch of instruments
// and indices atomically relative to readers.
func (s *Store) SnapshotWriteBatch(ctx context.Context, instruments []model.Instrument, indices []model.Index) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, inst := range instruments {
			row := StockRow{
				Symbol: inst.Symbol, Price: inst.Price, PrevClose: inst.PrevClose,
				Change: inst.Change, ChangePct: inst.ChangePct, UpdatedAt: inst.UpdatedAt,
			}
			if err := tx.Model(&StockRow{}).Where("symbol = ?", inst.Symbol).Updates(map[string]any{
				"price": row.Price, "prev_close": row.PrevClose,
				"change": row.Change, "change_pct": row.ChangePct, "updated_at": row.UpdatedAt,
			}).Error; err != nil {
				return fmt.Errorf("update stock %s: %w", inst.Symbol, err)
			}
		}

		for _, idx := range indices {
			if err := tx.Model(&IndexRow{}).Where("code = ?", idx.Code).Updates(map[string]any{
				"value": idx.Value, "prev_close": idx.PrevClose,
				"change": idx.Change, "change_pct": idx.ChangePct, "updated_at": idx.UpdatedAt,
			}).Error; err != nil {
				return fmt.Errorf("update index %s: %w", idx.Code, err)
			}
		}
		return nil
	})
}

// HistoryAppend inserts a batch of bars, replacing any existing row with
// the same (target_type, target_code, timestamp) key — a
// replayed tick therefore overwrites rather than duplicates.
func (s *Store) HistoryAppend(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]PriceDataRow, len(bars))
	for i, b := range bars {
		rows[i] = PriceDataRow{
			TargetType: string(b.TargetType), TargetCode: b.TargetCode,
			Timestamp: b.Timestamp, Interval: b.Interval,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume, Turnover: b.Turnover, ChangePct: b.ChangePct,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_type"}, {Name: "target_code"}, {Name: "timestamp"}},
		UpdateAll: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// SaveRegime marks the previous current row as closed (if any) and
// inserts the new one as current, in one transaction.
func (s *Store) SaveRegime(ctx context.Context, r model.MarketRegime) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&MarketStateRow{}).Where("is_current = ?", true).Updates(map[string]any{
			"is_current": false,
			"end_time":   r.StartTime,
		}).Error; err != nil {
			return fmt.Errorf("close previous regime: %w", err)
		}
		row := MarketStateRow{
			Regime: string(r.Regime), StartTime: r.StartTime, EndTime: r.EndTime,
			DailyDrift: r.DailyDrift, VolatilityMult: r.VolatilityMult, IsCurrent: true,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert regime: %w", err)
		}
		return nil
	})
}

// HistoryRange reads bars for a target within [from, to), used by the
// archiver and by backfill.
func (s *Store) HistoryRange(ctx context.Context, targetType model.TargetType, targetCode string, from, to time.Time) ([]model.Bar, error) {
	var rows []PriceDataRow
	err := s.db.WithContext(ctx).
		Where("target_type = ? AND target_code = ? AND timestamp >= ? AND timestamp < ?", string(targetType), targetCode, from, to).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history range: %w", err)
	}
	out := make([]model.Bar, len(rows))
	for i, r := range rows {
		out[i] = model.Bar{
			TargetType: model.TargetType(r.TargetType), TargetCode: r.TargetCode,
			Interval: r.Interval, Timestamp: r.Timestamp,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, Turnover: r.Turnover, ChangePct: r.ChangePct,
		}
	}
	return out, nil
}

// DeleteHistoryBefore removes history rows older than cutoff, used by the
// archiver once a batch has been written to disk.
func (s *Store) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&PriceDataRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveRNGState upserts the single persisted shock-generator snapshot, so a
// restarted process can resume its draw sequence instead of reseeding.
func (s *Store) SaveRNGState(ctx context.Context, seed int64, snapshot []byte) error {
	row := RNGStateRow{ID: 1, Seed: seed, State: snapshot, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save rng state: %w", err)
	}
	return nil
}

// LoadRNGState reads the persisted shock-generator snapshot, if any.
func (s *Store) LoadRNGState(ctx context.Context) (seed int64, snapshot []byte, found bool, err error) {
	var row RNGStateRow
	result := s.db.WithContext(ctx).First(&row, "id = ?", 1)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("load rng state: %w", result.Error)
	}
	return row.Seed, row.State, true, nil
}
