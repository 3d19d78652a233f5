// Package simulated provides a deterministic random-walk source connector
// used for development and tests. Bars are aligned to period boundaries and
// reproducible for a given seed, symbol and time range, so repeated
// retrievals of an overlapping range converge under upsert.
package simulated

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"algodata/internal/connector"
	"algodata/internal/models"
)

// Name is the registry key for this connector.
const Name = "simulated"

type Connector struct {
	seed      int64
	spreadBps float64
}

// New validates connection params and builds the connector. Params:
// "seed" (optional integer), "spread_bps" (optional number, default 20).
func New(params map[string]any) (connector.Source, error) {
	seed, err := connector.OptionalInt(params, "seed", 1)
	if err != nil {
		return nil, err
	}
	spread := 20.0
	if _, ok := params["spread_bps"]; ok {
		spread, err = connector.FloatParam(params, "spread_bps")
		if err != nil {
			return nil, err
		}
	}
	return &Connector{seed: seed, spreadBps: spread}, nil
}

var instruments = []connector.SymbolInfo{
	{Name: "GBPUSD", InstrumentType: models.InstrumentForex, Metadata: map[string]any{"tick_size": 0.00001, "base": 1.27}},
	{Name: "EURUSD", InstrumentType: models.InstrumentForex, Metadata: map[string]any{"tick_size": 0.00001, "base": 1.08}},
	{Name: "USDJPY", InstrumentType: models.InstrumentForex, Metadata: map[string]any{"tick_size": 0.001, "base": 148.5}},
	{Name: "SPX500", InstrumentType: models.InstrumentCFD, Metadata: map[string]any{"tick_size": 0.1, "base": 5200.0}},
	{Name: "BTCUSD", InstrumentType: models.InstrumentCrypto, Metadata: map[string]any{"tick_size": 0.01, "base": 64000.0}},
}

func (c *Connector) GetSymbols(ctx context.Context) ([]connector.SymbolInfo, error) {
	out := make([]connector.SymbolInfo, len(instruments))
	copy(out, instruments)
	return out, nil
}

func (c *Connector) GetPrices(ctx context.Context, symbol string, from, to time.Time, period string, info map[string]any) ([]connector.Candle, error) {
	d, err := models.PeriodDuration(period)
	if err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, connector.ErrDataNotAvailable
	}

	base := 100.0
	if info != nil {
		if b, err := connector.FloatParam(info, "base"); err == nil {
			base = b
		}
	}

	// Align the first bar to the period grid at or after from.
	start := from.UTC().Truncate(d)
	if start.Before(from) {
		start = start.Add(d)
	}
	if start.After(to) {
		return nil, connector.ErrDataNotAvailable
	}

	var out []connector.Candle
	for t := start; !t.After(to); t = t.Add(d) {
		out = append(out, c.bar(symbol, t, period, d, base))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// bar derives one candle deterministically from (seed, symbol, bar time).
func (c *Connector) bar(symbol string, t time.Time, period string, d time.Duration, base float64) connector.Candle {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(c.seed ^ int64(h.Sum64()) ^ t.UnixNano()))

	// Slow sine drift plus per-bar noise around the instrument's base price.
	phase := float64(t.Unix()/int64(d.Seconds())) / 97.0
	mid := base * (1 + 0.01*math.Sin(phase) + 0.001*(rng.Float64()-0.5))
	span := base * 0.0005 * (0.5 + rng.Float64())
	halfSpread := mid * c.spreadBps / 20000.0

	open := mid - span/2
	closePx := mid + span/2
	if rng.Intn(2) == 0 {
		open, closePx = closePx, open
	}
	high := math.Max(open, closePx) + span*rng.Float64()/2
	low := math.Min(open, closePx) - span*rng.Float64()/2

	dec := func(v float64) decimal.Decimal {
		return decimal.NewFromFloat(v).Round(6)
	}
	return connector.Candle{
		Time:     t,
		Period:   period,
		BidOpen:  dec(open - halfSpread),
		BidHigh:  dec(high - halfSpread),
		BidLow:   dec(low - halfSpread),
		BidClose: dec(closePx - halfSpread),
		AskOpen:  dec(open + halfSpread),
		AskHigh:  dec(high + halfSpread),
		AskLow:   dec(low + halfSpread),
		AskClose: dec(closePx + halfSpread),
		Volume:   int64(rng.Intn(1000) + 1),
	}
}
