// Package archive periodically moves old history bars from the relational
// store to local gzipped NDJSON files, deleting the oldest archives once
// total size exceeds a configured cap.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ndrandal/marketsim/internal/model"
	"github.com/ndrandal/marketsim/internal/store"
)

// Archiver drains price_data rows older than maxAge into the local
// filesystem and prunes them from the store.
type Archiver struct {
	store    *store.Store
	targets  []Target
	dir      string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration
}

// Target identifies one (type, code) history series to archive, e.g.
// (TargetStock, "AAPL") or (TargetIndex, "MKT30").
type Target struct {
	targetType model.TargetType
	targetCode string
}

// NewTarget builds a Target pair.
func NewTarget(t model.TargetType, code string) Target {
	return Target{targetType: t, targetCode: code}
}

// New creates a new Archiver over the given (targetType, targetCode)
// pairs — one per instrument/index whose history should be archived.
func New(s *store.Store, targets []Target, dir string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		store:    s,
		targets:  targets,
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("history archiver: dir=%s max=%dGB interval=%v age=%v",
		a.dir, a.maxBytes>>30, a.interval, a.maxAge)

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cutoff := time.Now().Add(-a.maxAge)
	failed := false

	for _, t := range a.targets {
		bars, err := a.store.HistoryRange(ctx, t.targetType, t.targetCode, time.Time{}, cutoff)
		if err != nil {
			log.Printf("history archiver: query %s/%s: %v", t.targetType, t.targetCode, err)
			failed = true
			continue
		}
		if len(bars) == 0 {
			continue
		}

		batches := groupByDay(bars)
		for day, batch := range batches {
			if err := a.writeBatch(t, day, batch); err != nil {
				log.Printf("history archiver: write %s/%s %s: %v", t.targetType, t.targetCode, day, err)
				failed = true
				continue
			}
			log.Printf("history archiver: archived %d bars for %s/%s on %s", len(batch), t.targetType, t.targetCode, day)
		}
	}

	if failed {
		log.Printf("history archiver: some bars were not archived, keeping rows before %v", cutoff)
	} else if n, err := a.store.DeleteHistoryBefore(ctx, cutoff); err != nil {
		log.Printf("history archiver: delete before %v: %v", cutoff, err)
	} else if n > 0 {
		log.Printf("history archiver: pruned %d archived rows", n)
	}

	a.rotate()
}

func groupByDay(bars []model.Bar) map[string][]model.Bar {
	batches := make(map[string][]model.Bar)
	for _, b := range bars {
		day := b.Timestamp.UTC().Format("2006/01/02")
		batches[day] = append(batches[day], b)
	}
	return batches
}

// writeBatch writes bars as gzipped NDJSON to dir/history/<type>/<code>/YYYY/MM/DD.jsonl.gz,
// appending a new gzip member when the day's file already exists.
func (a *Archiver) writeBatch(t Target, day string, bars []model.Bar) error {
	path := filepath.Join(a.dir, "history", string(t.targetType), t.targetCode, day+".jsonl.gz")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, b := range bars {
		if err := enc.Encode(b); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write: %w", err)
	}
	return f.Close()
}

// rotate deletes the oldest archive files until total size is under maxBytes.
func (a *Archiver) rotate() {
	root := filepath.Join(a.dir, "history")

	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	// Paths are history/<type>/<code>/YYYY/MM/DD.jsonl.gz: order by the
	// trailing date part so the oldest day goes first across all targets.
	day := func(p string) string {
		return p[len(filepath.Dir(filepath.Dir(filepath.Dir(p)))):]
	}
	sort.Slice(files, func(i, j int) bool {
		di, dj := day(files[i].path), day(files[j].path)
		if di != dj {
			return di < dj
		}
		return files[i].path < files[j].path
	})

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("history archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("history archiver: rotated out %s (%d bytes)", f.path, f.size)
	}
}
