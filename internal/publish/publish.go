// Package publish builds and ships the wire messages for a tick's worth
// of instrument and index updates onto the pub/sub bus.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/ndrandal/marketsim/internal/bus"
	"github.com/ndrandal/marketsim/internal/model"
)

const (
	ChannelStocks  = "market:stocks"
	ChannelIndices = "market:indices"
)

func channelForStock(symbol string) string { return fmt.Sprintf("market:stock:%s", symbol) }
func channelForIndex(code string) string   { return fmt.Sprintf("market:index:%s", code) }

// stockRecord is the per-instrument wire shape embedded in both the
// per-symbol and aggregate messages.
type stockRecord struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

type indexRecord struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher turns a tick's instrument/index/bar output into bus messages.
// Per spec, per-instrument messages for a tick publish before that tick's
// aggregate message.
type Publisher struct {
	bridge *bus.Bridge
}

// New creates a publisher over a pub/sub bridge.
func New(bridge *bus.Bridge) *Publisher {
	return &Publisher{bridge: bridge}
}

// PublishTick sends per-instrument messages, then the aggregate market
// message, then the equivalent for indices. Publishing is fire-and-forget:
// a bus outage never fails the tick.
func (p *Publisher) PublishTick(ctx context.Context, instruments []model.Instrument, bars map[string]model.Bar, indices []model.Index) {
	ts := time.Now().UTC()

	stockRecs := make([]stockRecord, 0, len(instruments))
	for _, inst := range instruments {
		bar := bars[inst.Symbol]
		rec := stockRecord{
			Symbol: inst.Symbol, Name: inst.Name, Price: inst.Price,
			Open: bar.Open, High: bar.High, Low: bar.Low,
			Change: inst.Change, ChangePercent: inst.ChangePct,
			Volume: bar.Volume, Timestamp: ts,
		}
		stockRecs = append(stockRecs, rec)

		p.bridge.Publish(ctx, channelForStock(inst.Symbol), map[string]any{
			"type": "stock_update", "data": rec,
		})
	}
	p.bridge.Publish(ctx, ChannelStocks, map[string]any{
		"type": "market_update",
		"data": map[string]any{"timestamp": ts, "stocks": stockRecs},
	})

	indexRecs := make([]indexRecord, 0, len(indices))
	for _, idx := range indices {
		rec := indexRecord{
			Code: idx.Code, Name: idx.Name, Value: idx.Value,
			Change: idx.Change, ChangePercent: idx.ChangePct, Timestamp: ts,
		}
		indexRecs = append(indexRecs, rec)

		p.bridge.Publish(ctx, channelForIndex(idx.Code), map[string]any{
			"type": "index_update", "data": rec,
		})
	}
	p.bridge.Publish(ctx, ChannelIndices, map[string]any{
		"type": "indices_update",
		"data": map[string]any{"timestamp": ts, "indices": indexRecs},
	})
}
