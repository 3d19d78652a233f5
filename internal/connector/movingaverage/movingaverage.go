// Package movingaverage is a feature connector computing a simple moving
// average of the mid close over the feature's lookback window.
package movingaverage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"algodata/internal/connector"
	"algodata/internal/models"
)

// Name is the registry key for this connector.
const Name = "moving_average"

var two = decimal.NewFromInt(2)

type Connector struct{}

func New() (connector.Feature, error) {
	return &Connector{}, nil
}

// Calculate emits, for each candle with a full window of history behind it,
// the average mid close over the window. The window size is the feature's
// lookback divided by the input's bar width.
func (c *Connector) Calculate(ctx context.Context, req connector.FeatureRequest) ([]connector.FeatureResult, error) {
	if len(req.Inputs) != 1 {
		return nil, fmt.Errorf("moving average requires exactly one input, got %d", len(req.Inputs))
	}
	series := req.Inputs[0]
	if len(series.Candles) == 0 {
		return nil, nil
	}

	lookback, err := models.ParseLookback(req.Feature.Lookback)
	if err != nil {
		return nil, err
	}
	barWidth, err := models.PeriodDuration(series.Input.Period)
	if err != nil {
		return nil, err
	}
	window := int(lookback / barWidth)
	if window < 1 {
		window = 1
	}

	var results []connector.FeatureResult
	sum := decimal.Zero
	for i, candle := range series.Candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum = sum.Add(midClose(candle))
		if i >= window {
			sum = sum.Sub(midClose(series.Candles[i-window]))
		}
		if i >= window-1 {
			results = append(results, connector.FeatureResult{
				Time:  candle.Time,
				Value: sum.Div(decimal.NewFromInt(int64(window))).Round(6),
			})
		}
	}
	return results, nil
}

func midClose(c models.Candle) decimal.Decimal {
	return c.BidClose.Add(c.AskClose).Div(two)
}
