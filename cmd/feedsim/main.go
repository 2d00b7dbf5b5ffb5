package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndrandal/marketsim/internal/archive"
	"github.com/ndrandal/marketsim/internal/bus"
	"github.com/ndrandal/marketsim/internal/catalog"
	"github.com/ndrandal/marketsim/internal/config"
	"github.com/ndrandal/marketsim/internal/engine"
	"github.com/ndrandal/marketsim/internal/index"
	"github.com/ndrandal/marketsim/internal/model"
	"github.com/ndrandal/marketsim/internal/publish"
	"github.com/ndrandal/marketsim/internal/scheduler"
	"github.com/ndrandal/marketsim/internal/session"
	"github.com/ndrandal/marketsim/internal/store"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("market simulator starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	shocks := engine.NewShockGenerator(cfg.Seed)
	log.Printf("shock generator seed: %d", cfg.Seed)

	cat := catalog.Default()
	log.Printf("loaded %d instruments across %d sectors, %d indices", len(cat.Instruments), len(cat.Sectors), len(cat.Indices))

	db, err := store.New(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := db.SeedCatalog(ctx, cat); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	if seed, snapshot, found, err := db.LoadRNGState(ctx); err != nil {
		log.Printf("rng state load failed, continuing with a fresh generator: %v", err)
	} else if found {
		shocks.Restore(snapshot)
		log.Printf("restored shock generator state (originally seeded %d)", seed)
	}

	priceEngine := engine.NewPriceEngine(shocks, cat.Instruments, cat.Sectors, engine.Params{
		StepsPerDay:     cfg.StepsPerDay,
		TradingDaysYear: cfg.TradingDaysYear,
		PriceLimitPct:   cfg.PriceLimitPct,
		WeightMarket:    cfg.WeightMarket,
		WeightSector:    cfg.WeightSector,
		WeightIdio:      cfg.WeightIdio,
		RhoMarketSector: cfg.RhoMarketSector,
		SigmaMarketAnn:  cfg.SigmaMarketAnn,
		SigmaSectorAnn:  cfg.SigmaSectorAnn,
	})

	if persisted, err := db.SnapshotReadAll(ctx); err == nil {
		for _, inst := range persisted {
			if inst.Price > 0 {
				priceEngine.SetPrice(inst.Symbol, inst.Price, inst.PrevClose)
			}
		}
	}

	regimeCtl := engine.NewRegimeController(shocks, cfg.RegimeMinDwellDays)
	indexEngine := index.NewEngine(cat.Indices, cat.Constituents)

	bridge := bus.New(cfg.RedisAddr)
	defer bridge.Close()

	publisher := publish.New(bridge)
	hub := session.NewHub(bridge, cfg.SendBufferSize, time.Duration(cfg.HeartbeatSeconds)*time.Second)

	go hub.RunReaper(ctx)

	clock := scheduler.New(cfg.TickInterval, func(tickCtx context.Context) {
		runTick(tickCtx, priceEngine, regimeCtl, indexEngine, db, publisher)
	})
	go clock.Run(ctx)
	log.Printf("tick scheduler running every %v", cfg.TickInterval)

	go runRegimeTask(ctx, cfg.RegimeCheckInterval, regimeCtl, db)
	log.Printf("regime transition task running every %v, independent of the tick clock", cfg.RegimeCheckInterval)

	if cfg.ArchiveDir != "" {
		archiver := archive.New(db, buildArchiveTargets(cat), cfg.ArchiveDir, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
		go archiver.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/market", session.Handler(hub, publish.ChannelStocks))
	mux.HandleFunc("/ws/indices", session.Handler(hub, publish.ChannelIndices))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","sessions":%d,"instruments":%d}`, hub.SessionCount(), len(cat.Instruments))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("WebSocket server listening on ws://%s/ws/market", addr)
	log.Printf("Health check: http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	if err := db.SaveRNGState(context.Background(), cfg.Seed, shocks.Snapshot()); err != nil {
		log.Printf("failed to persist shock generator state: %v", err)
	}

	log.Println("market simulator stopped")
}

// runRegimeTask is the slow task that evaluates regime transitions,
// independent of the per-tick clock: a Markov-kernel transition is only
// ever attempted here, at cfg.RegimeCheckInterval, never from runTick.
func runRegimeTask(ctx context.Context, interval time.Duration, regimeCtl *engine.RegimeController, db *store.Store) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			regime, changed := regimeCtl.Transition(false)
			if !changed {
				continue
			}
			if err := db.SaveRegime(ctx, regime); err != nil {
				log.Printf("regime task: save regime: %v", err)
			} else {
				log.Printf("regime transitioned to %s (drift=%.4f, vol=%.2fx)", regime.Regime, regime.DailyDrift, regime.VolatilityMult)
			}
		}
	}
}

// runTick executes one full tick against the regime controller's current
// state: price advance, index recompute, store commit, publish. Data
// invariant violations abort the tick (no snapshot update, no publish);
// infra errors are logged and otherwise swallowed so the simulation
// keeps running.
func runTick(ctx context.Context, priceEngine *engine.PriceEngine, regimeCtl *engine.RegimeController, indexEngine *index.Engine, db *store.Store, publisher *publish.Publisher) {
	regime := regimeCtl.Current()

	stockBars, err := priceEngine.Tick(ctx, regime)
	if err != nil {
		log.Printf("tick: price engine error, aborting tick: %v", err)
		return
	}

	instruments := priceEngine.Snapshot()
	prices := make(map[string]float64, len(instruments))
	barsBySymbol := make(map[string]model.Bar, len(stockBars))
	for i, inst := range instruments {
		prices[inst.Symbol] = inst.Price
		_ = i
	}
	for _, b := range stockBars {
		barsBySymbol[b.TargetCode] = b
	}

	now := time.Now()
	indexBars, idxErrs := indexEngine.Recompute(prices, now)
	for _, e := range idxErrs {
		log.Printf("tick: index warning: %v", e)
	}
	indices := indexEngine.Snapshot()

	if err := db.SnapshotWriteBatch(ctx, instruments, indices); err != nil {
		log.Printf("tick: snapshot write failed: %v", err)
		return
	}

	allBars := append(append([]model.Bar{}, stockBars...), indexBars...)
	if err := db.HistoryAppend(ctx, allBars); err != nil {
		log.Printf("tick: history append failed: %v", err)
	}

	publisher.PublishTick(ctx, instruments, barsBySymbol, indices)
}

// buildArchiveTargets enumerates every instrument and index symbol as an
// archive target, so the archiver eventually drains history for all of them.
func buildArchiveTargets(cat catalog.Catalog) []archive.Target {
	targets := make([]archive.Target, 0, len(cat.Instruments)+len(cat.Indices))
	for _, inst := range cat.Instruments {
		targets = append(targets, archive.NewTarget(model.TargetStock, inst.Symbol))
	}
	for _, idx := range cat.Indices {
		targets = append(targets, archive.NewTarget(model.TargetIndex, idx.Code))
	}
	return targets
}
