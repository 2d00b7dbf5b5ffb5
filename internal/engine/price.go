package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ndrandal/marketsim/internal/model"
)

// PriceEngine drives the three-layer correlated log-return model: one
// market shock, one sector shock correlated with it, and one idiosyncratic
// shock per instrument.
type PriceEngine struct {
	mu      sync.RWMutex
	shocks  *ShockGenerator
	dt      float64
	tickNum int64
	stepsPerDay int

	weightMarket float64
	weightSector float64
	weightIdio   float64
	rhoMS        float64
	priceLimit   float64

	sigmaMarketDay float64
	sigmaSectorDay float64

	sectorBeta map[string]float64
	instruments map[string]*model.Instrument
}

// Params bundles the configuration the three-layer model needs.
type Params struct {
	StepsPerDay     int
	TradingDaysYear int
	PriceLimitPct   float64
	WeightMarket    float64
	WeightSector    float64
	WeightIdio      float64
	RhoMarketSector float64
	SigmaMarketAnn  float64
	SigmaSectorAnn  float64
}

// NewPriceEngine builds a price engine over the given instrument snapshot
// and sector betas.
func NewPriceEngine(shocks *ShockGenerator, instruments []model.Instrument, sectors []model.Sector, p Params) *PriceEngine {
	dt := 1.0 / float64(p.StepsPerDay)
	dayFrac := math.Sqrt(float64(p.TradingDaysYear))

	sectorBeta := make(map[string]float64, len(sectors))
	for _, s := range sectors {
		sectorBeta[s.Code] = s.Beta
	}

	instMap := make(map[string]*model.Instrument, len(instruments))
	for i := range instruments {
		inst := instruments[i]
		instMap[inst.Symbol] = &inst
	}

	return &PriceEngine{
		shocks:         shocks,
		dt:             dt,
		stepsPerDay:    p.StepsPerDay,
		weightMarket:   p.WeightMarket,
		weightSector:   p.WeightSector,
		weightIdio:     p.WeightIdio,
		rhoMS:          p.RhoMarketSector,
		priceLimit:     p.PriceLimitPct,
		sigmaMarketDay: p.SigmaMarketAnn / dayFrac,
		sigmaSectorDay: p.SigmaSectorAnn / dayFrac,
		sectorBeta:     sectorBeta,
		instruments:    instMap,
	}
}

// Snapshot returns a consistent copy of every instrument's current
// dynamic state.
func (e *PriceEngine) Snapshot() []model.Instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Instrument, 0, len(e.instruments))
	for _, inst := range e.instruments {
		out = append(out, *inst)
	}
	return out
}

// SetPrice restores a persisted price, used on startup recovery.
func (e *PriceEngine) SetPrice(symbol string, price, prevClose float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.instruments[symbol]; ok {
		inst.Price = price
		inst.PrevClose = prevClose
	}
}

// Tick advances every instrument by one simulated step under the given
// regime and returns the resulting bars. Per-instrument work runs
// concurrently; the method itself blocks until every instrument has been
// updated, giving the caller a single consistent snapshot to hand to the
// index and bar-store layers.
func (e *PriceEngine) Tick(ctx context.Context, regime model.MarketRegime) ([]model.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	z0 := e.shocks.NormalShock()
	z1 := e.shocks.NormalShock()
	zMarket := z0
	zSector := e.rhoMS*z0 + math.Sqrt(1-e.rhoMS*e.rhoMS)*z1

	sqrtDt := math.Sqrt(e.dt)
	rMarket := regime.DailyDrift*e.dt + e.sigmaMarketDay*regime.VolatilityMult*sqrtDt*zMarket
	rSector := e.sigmaSectorDay * regime.VolatilityMult * sqrtDt * zSector

	symbols := make([]string, 0, len(e.instruments))
	for sym := range e.instruments {
		symbols = append(symbols, sym)
	}

	bars := make([]model.Bar, len(symbols))
	now := time.Now()

	g, _ := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			bars[i] = e.tickOne(sym, rMarket, rSector, regime.VolatilityMult, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.tickNum++
	if e.stepsPerDay > 0 && e.tickNum%int64(e.stepsPerDay) == 0 {
		for _, inst := range e.instruments {
			inst.PrevClose = inst.Price
		}
	}

	return bars, nil
}

func (e *PriceEngine) tickOne(symbol string, rMarket, rSector, volMult float64, ts time.Time) model.Bar {
	inst := e.instruments[symbol]
	sigmaIdioDay := inst.SigmaAnnual / math.Sqrt(250) * volMult
	zIdio := e.shocks.NormalShock()
	rIdio := sigmaIdioDay * math.Sqrt(e.dt) * zIdio

	sectorBeta := e.sectorBeta[inst.SectorCode]
	r := e.weightMarket*inst.Beta*rMarket + e.weightSector*sectorBeta*rSector + e.weightIdio*rIdio

	prevClose := inst.PrevClose
	if prevClose <= 0 {
		prevClose = inst.Price
	}
	lowBand := prevClose * (1 - e.priceLimit)
	highBand := prevClose * (1 + e.priceLimit)

	rawClose := inst.Price * math.Exp(r)
	capped := false
	newClose := clampPrice(rawClose, lowBand, highBand)
	if newClose != rawClose {
		capped = true
		// Recompute the realised return from the clamped price so the
		// stored bar reflects what actually happened, not the uncapped draw.
		r = math.Log(newClose / inst.Price)
	}

	open := inst.Price
	high, low := e.brownianBridgeRange(open, r, lowBand, highBand)
	if high < math.Max(open, newClose) {
		high = math.Max(open, newClose)
	}
	if low > math.Min(open, newClose) {
		low = math.Min(open, newClose)
	}

	volume := e.simulateVolume(r)
	turnover := float64(volume) * newClose

	inst.Price = newClose
	changePct := 0.0
	if prevClose > 0 {
		changePct = 100 * (newClose/prevClose - 1)
	}
	inst.Change = newClose - prevClose
	inst.ChangePct = changePct
	inst.UpdatedAt = ts

	return model.Bar{
		TargetType: model.TargetStock,
		TargetCode: symbol,
		Interval:   "1t",
		Timestamp:  ts,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      newClose,
		Volume:     volume,
		Turnover:   turnover,
		ChangePct:  changePct,
		Capped:     capped,
	}
}

// brownianBridgeRange samples two intermediate perturbations to derive a
// plausible high/low for the tick's open-to-close move, per the
// three-layer model's OHLC reconstruction recipe.
func (e *PriceEngine) brownianBridgeRange(open, r, lowBand, highBand float64) (high, low float64) {
	stddev := math.Abs(r) / 2
	if stddev == 0 {
		return open, open
	}
	u := e.shocks.NormalShock() * stddev
	v := e.shocks.NormalShock() * stddev

	points := [4]float64{0, u, u + v, r}
	high, low = math.Inf(-1), math.Inf(1)
	for _, p := range points {
		price := clampPrice(open*math.Exp(p), lowBand, highBand)
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
	}
	return high, low
}

// simulateVolume approximates a Poisson(mean=5000) draw with a
// normal-moments approximation (mean and variance both equal to the
// Poisson mean), which is accurate enough at this scale and avoids
// pulling in a dedicated statistics dependency for one call site.
func (e *PriceEngine) simulateVolume(r float64) int64 {
	const baseMean = 5000.0
	const floor = 10000.0
	scale := 1 + 50*math.Abs(r)

	mean := baseMean * scale
	sample := mean + math.Sqrt(mean)*e.shocks.NormalShock()
	if sample < 0 {
		sample = 0
	}
	return int64(sample) + int64(floor*scale)
}

func clampPrice(p, lo, hi float64) float64 {
	if p < lo {
		p = lo
	}
	if p > hi {
		p = hi
	}
	if p < 0.01 {
		p = 0.01
	}
	return p
}
