package engine

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// ShockGenerator draws the market/sector/idiosyncratic shocks the price
// and regime models consume: uniform draws via PCG-XSH-RR, standard
// normal draws via a cached Box-Muller pair. Safe for concurrent use.
type ShockGenerator struct {
	mu        sync.Mutex
	pcgState  uint64
	pcgStream uint64
	cache     gaussianCache
}

// gaussianCache holds the second value of a Box-Muller pair until the
// next NormalShock call consumes it, so each pair of uniform draws
// yields two normal draws instead of one.
type gaussianCache struct {
	has   bool
	value float64
}

// NewShockGenerator seeds a generator. A zero seed draws entropy from the
// clock instead of producing a deterministic, all-zero stream.
func NewShockGenerator(seed int64) *ShockGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &ShockGenerator{pcgStream: uint64(seed)<<1 | 1}
	g.advance()
	g.pcgState += uint64(seed)
	g.advance()
	return g
}

func (g *ShockGenerator) advance() {
	g.pcgState = g.pcgState*6364136223846793005 + g.pcgStream
}

func (g *ShockGenerator) nextUint32() uint32 {
	g.mu.Lock()
	old := g.pcgState
	g.advance()
	g.mu.Unlock()

	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Uniform returns a uniformly distributed float64 in [0, 1).
func (g *ShockGenerator) Uniform() float64 {
	return float64(g.nextUint32()) / (1 << 32)
}

// UniformInt returns a uniformly distributed int in [0, n). Returns 0 for
// n <= 0 rather than panicking, since callers index fixed-size slices
// with it (e.g. a regime's neighbor list).
func (g *ShockGenerator) UniformInt(n int) int {
	if n <= 0 {
		return 0
	}
	return int(g.nextUint32() % uint32(n))
}

// UniformRange returns a uniformly distributed int in [lo, hi].
func (g *ShockGenerator) UniformRange(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return lo + g.UniformInt(hi-lo+1)
}

// NormalShock returns a standard normal draw (mean 0, variance 1) via
// Box-Muller, caching the second value of each generated pair.
func (g *ShockGenerator) NormalShock() float64 {
	g.mu.Lock()
	if g.cache.has {
		g.cache.has = false
		v := g.cache.value
		g.mu.Unlock()
		return v
	}
	g.mu.Unlock()

	var u, v, s float64
	for {
		u = g.Uniform()*2 - 1
		v = g.Uniform()*2 - 1
		s = u*u + v*v
		if s > 0 && s < 1 {
			break
		}
	}
	scale := math.Sqrt(-2 * math.Log(s) / s)

	g.mu.Lock()
	g.cache = gaussianCache{has: true, value: v * scale}
	g.mu.Unlock()

	return u * scale
}

// WeightedIndex picks an index from weights with probability proportional
// to each weight.
func (g *ShockGenerator) WeightedIndex(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	target := g.Uniform() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return i
		}
	}
	return len(weights) - 1
}

// Snapshot encodes the generator's internal PCG state for persistence
// across process restarts.
func (g *ShockGenerator) Snapshot() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], g.pcgState)
	binary.BigEndian.PutUint64(buf[8:16], g.pcgStream)
	return buf
}

// Restore replaces the generator's internal state from a prior Snapshot.
// A short or empty slice is a no-op, so a missing snapshot on first boot
// just leaves the freshly seeded generator in place.
func (g *ShockGenerator) Restore(snapshot []byte) {
	if len(snapshot) < 16 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pcgState = binary.BigEndian.Uint64(snapshot[0:8])
	g.pcgStream = binary.BigEndian.Uint64(snapshot[8:16])
	g.cache = gaussianCache{}
}
