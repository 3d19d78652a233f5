package connector

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"algodata/internal/models"
)

// ErrDataNotAvailable is returned by a source connector when it cannot serve
// the requested range. The retrieval pipeline logs it and skips the symbol;
// it never fails a run.
var ErrDataNotAvailable = errors.New("data not available for requested range")

// ErrNotRegistered is returned when a connector name has no registered
// factory. This is a configuration defect and propagates.
var ErrNotRegistered = errors.New("connector not registered")

// SymbolInfo is one instrument as reported by a source connector. Metadata
// carries any provider-specific fields beyond the name and type, e.g. tick
// size or contract size; it lands in the source-symbol link verbatim.
type SymbolInfo struct {
	Name           string
	InstrumentType string
	Metadata       map[string]any
}

// Candle is one OHLCV bar returned by a source connector. The source-symbol
// tag is added by the pipeline, not the connector.
type Candle struct {
	Time   time.Time
	Period string

	BidOpen  decimal.Decimal
	BidHigh  decimal.Decimal
	BidLow   decimal.Decimal
	BidClose decimal.Decimal
	AskOpen  decimal.Decimal
	AskHigh  decimal.Decimal
	AskLow   decimal.Decimal
	AskClose decimal.Decimal

	Volume int64
}

// Source is the capability a data provider implements: enumerate its
// instruments and serve candle history for a time range.
type Source interface {
	GetSymbols(ctx context.Context) ([]SymbolInfo, error)
	GetPrices(ctx context.Context, symbol string, from, to time.Time, period string, info map[string]any) ([]Candle, error)
}

// InputSeries is the candle history fetched for one execution input, ordered
// by time ascending.
type InputSeries struct {
	Input   models.FeatureExecutionInput
	Candles []models.Candle
}

// FeatureRequest is everything a feature connector needs for one run: the
// execution, its definition, and the candle history from the resolved data
// watermark onwards (including the lookback warmup rows).
type FeatureRequest struct {
	Execution models.FeatureExecution
	Feature   models.Feature
	From      time.Time
	Inputs    []InputSeries
}

// FeatureResult is one computed value at one candle time.
type FeatureResult struct {
	Time  time.Time
	Value decimal.Decimal
}

// Feature is the capability a feature calculation implements. Calculate is a
// pure function of the request; the pipeline owns watermark resolution and
// persistence, and discards results for times that already have one.
type Feature interface {
	Calculate(ctx context.Context, req FeatureRequest) ([]FeatureResult, error)
}
