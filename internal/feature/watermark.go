// Package feature implements the calculation pipeline: it resolves, per
// execution, the earliest candle time all inputs have data for that has not
// been processed yet, fetches the candle history from there (widened by the
// feature's lookback window), hands it to the feature connector and persists
// the new results.
package feature

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"algodata/internal/connector"
	"algodata/internal/models"
	"algodata/internal/repository"
	"algodata/internal/upsert"
)

type Service struct {
	Repo     repository.Repository
	Registry *connector.Registry
	Engine   *upsert.Engine
	Logger   *zap.Logger

	// UpsertBatchSize caps rows per result upsert statement.
	UpsertBatchSize int
}

// NextDataFrom resolves the data watermark for an execution: the earliest
// time at which every active input has a candle and no result exists yet,
// minus the lookback window when earlier results are already in place. Nil
// means there is nothing new to process.
//
// The lookback is only subtracted once results exist: the warmup rows it adds
// are then guaranteed to be times already processed, so the run stays
// append-only. On a first run the watermark is the first qualifying time
// itself and the connector works with whatever history follows it.
func (s *Service) NextDataFrom(ctx context.Context, executionID uint64, lookback time.Duration) (*time.Time, error) {
	last, err := s.Repo.LatestResultTime(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("resolve data watermark: latest result: %w", err)
	}

	next, err := s.Repo.NextQualifyingTime(ctx, executionID, last)
	if err != nil {
		return nil, fmt.Errorf("resolve data watermark: next qualifying time: %w", err)
	}
	if next == nil {
		return nil, nil
	}

	from := next.UTC()
	if last != nil && lookback > 0 {
		from = from.Add(-lookback)
	}
	return &from, nil
}

// fetchInputs loads each active input's candle history from the watermark
// onwards.
func (s *Service) fetchInputs(ctx context.Context, exec *models.FeatureExecution, from time.Time) ([]connector.InputSeries, error) {
	var series []connector.InputSeries
	for _, input := range exec.Inputs {
		if !input.Active {
			continue
		}
		candles, err := s.Repo.ListCandlesFrom(ctx, input.SourceSymbolID, input.Period, from)
		if err != nil {
			return nil, fmt.Errorf("fetch input data: source symbol %d period %s: %w",
				input.SourceSymbolID, input.Period, err)
		}
		series = append(series, connector.InputSeries{Input: input, Candles: candles})
	}
	return series, nil
}

// storeResults persists computed results, dropping any time that already has
// a stored result so reprocessed warmup rows never rewrite history.
func (s *Service) storeResults(ctx context.Context, executionID uint64, from time.Time, results []connector.FeatureResult) (int, error) {
	existing, err := s.Repo.ListResultsFrom(ctx, executionID, from)
	if err != nil {
		return 0, fmt.Errorf("store results: list existing: %w", err)
	}
	seen := make(map[int64]bool, len(existing))
	for _, r := range existing {
		seen[r.Time.UTC().UnixMilli()] = true
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		t := r.Time.UTC()
		if t.Before(from) || seen[t.UnixMilli()] {
			continue
		}
		rows = append(rows, []any{executionID, t, r.Value})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err = s.Engine.Apply(ctx, upsert.Request{
		Table:         models.FeatureExecutionResult{}.TableName(),
		Data:          upsert.Dataset{Columns: models.ResultColumns, Rows: rows},
		UniqueColumns: models.ResultUniqueColumns,
		BatchSize:     s.UpsertBatchSize,
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
