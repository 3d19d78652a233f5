// Package summary computes data quality statistics over the candle store.
// Each run is a batch: per source-symbol-and-period (and per symbol across
// sources) it records coverage bounds, candle counts, and per-granularity
// bucket count statistics, plus the raw bucket series used for heatmaps.
package summary

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"algodata/internal/models"
	"algodata/internal/repository"
	"algodata/internal/upsert"
)

type Service struct {
	Repo   repository.Repository
	Engine *upsert.Engine
	Logger *zap.Logger

	// UpsertBatchSize caps rows per upsert statement.
	UpsertBatchSize int
	// Now is the clock; tests override it.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RunBatch produces one complete summary batch. All derived rows carry the
// batch id and are written through the upsert engine, so an interrupted batch
// can be re-run to completion without duplicates; readers only ever consume
// batches marked complete.
func (s *Service) RunBatch(ctx context.Context) error {
	batch := &models.SummaryBatch{Time: s.now(), Status: models.SummaryStatusNotStarted}
	if err := s.Repo.CreateSummaryBatch(ctx, batch); err != nil {
		return fmt.Errorf("summary batch: create: %w", err)
	}
	if err := s.Repo.UpdateSummaryBatchStatus(ctx, batch.ID, models.SummaryStatusInProgress); err != nil {
		return fmt.Errorf("summary batch %d: mark in progress: %w", batch.ID, err)
	}

	coverage, err := s.Repo.ListCoverage(ctx)
	if err != nil {
		return fmt.Errorf("summary batch %d: load coverage: %w", batch.ID, err)
	}

	if err := s.writeSourceMetrics(ctx, batch.ID, coverage); err != nil {
		return fmt.Errorf("summary batch %d: %w", batch.ID, err)
	}
	if err := s.writeSymbolMetrics(ctx, batch.ID, coverage); err != nil {
		return fmt.Errorf("summary batch %d: %w", batch.ID, err)
	}

	if err := s.Repo.UpdateSummaryBatchStatus(ctx, batch.ID, models.SummaryStatusComplete); err != nil {
		return fmt.Errorf("summary batch %d: mark complete: %w", batch.ID, err)
	}
	s.Logger.Info("summary batch complete",
		zap.Uint64("batch", batch.ID),
		zap.Int("candles", len(coverage)))
	return nil
}

type groupKey struct {
	id     uint64
	period string
}

// writeSourceMetrics emits the per source-symbol metric rows and the
// per-bucket aggregation series for heatmaps.
func (s *Service) writeSourceMetrics(ctx context.Context, batchID uint64, coverage []repository.CandleCoverageRow) error {
	groups := make(map[groupKey][]time.Time)
	for _, row := range coverage {
		k := groupKey{id: row.SourceSymbolID, period: row.Period}
		groups[k] = append(groups[k], row.Time.UTC())
	}

	var metricRows [][]any
	var aggRows [][]any
	for k, times := range groups {
		stats := computeStats(times)
		metricRows = append(metricRows, append(
			[]any{batchID, k.id, k.period, stats.first, stats.last, stats.count},
			stats.statValues()...))
		for _, granularity := range models.AggregationPeriods {
			for bucket, n := range stats.buckets[granularity] {
				aggRows = append(aggRows, []any{batchID, k.id, k.period, granularity, bucket, n})
			}
		}
	}

	err := s.Engine.Apply(ctx, upsert.Request{
		Table:         models.SummaryMetric{}.TableName(),
		Data:          upsert.Dataset{Columns: models.SummaryMetricColumns, Rows: metricRows},
		UniqueColumns: models.SummaryMetricUniqueColumns,
		BatchSize:     s.UpsertBatchSize,
	})
	if err != nil {
		return err
	}
	return s.Engine.Apply(ctx, upsert.Request{
		Table:         models.SummaryAggregation{}.TableName(),
		Data:          upsert.Dataset{Columns: models.SummaryAggregationColumns, Rows: aggRows},
		UniqueColumns: models.SummaryAggregationUniqueColumns,
		BatchSize:     s.UpsertBatchSize,
	})
}

// writeSymbolMetrics emits the same statistics grouped by symbol across all
// sources.
func (s *Service) writeSymbolMetrics(ctx context.Context, batchID uint64, coverage []repository.CandleCoverageRow) error {
	groups := make(map[groupKey][]time.Time)
	for _, row := range coverage {
		k := groupKey{id: row.SymbolID, period: row.Period}
		groups[k] = append(groups[k], row.Time.UTC())
	}

	var rows [][]any
	for k, times := range groups {
		stats := computeStats(times)
		rows = append(rows, append(
			[]any{batchID, k.id, k.period, stats.first, stats.last, stats.count},
			stats.statValues()...))
	}

	return s.Engine.Apply(ctx, upsert.Request{
		Table:         models.SummaryMetricAllSources{}.TableName(),
		Data:          upsert.Dataset{Columns: models.SummaryMetricAllSourcesColumns, Rows: rows},
		UniqueColumns: models.SummaryMetricAllSourcesUniqueColumns,
		BatchSize:     s.UpsertBatchSize,
	})
}

type bucketStats struct {
	min    int64
	max    int64
	median float64
}

type groupStats struct {
	first   time.Time
	last    time.Time
	count   int64
	stats   map[string]bucketStats
	buckets map[string]map[time.Time]int64
}

// statValues flattens the per-granularity statistics in the metric tables'
// column order.
func (g groupStats) statValues() []any {
	out := make([]any, 0, 3*len(models.AggregationPeriods))
	for _, granularity := range models.AggregationPeriods {
		st := g.stats[granularity]
		out = append(out, st.min, st.max, st.median)
	}
	return out
}

// computeStats derives coverage bounds and, for each aggregation granularity,
// the candle count per bucket plus min/max/median across the occupied
// buckets. Gaps in the data do not contribute zero buckets.
func computeStats(times []time.Time) groupStats {
	g := groupStats{
		count:   int64(len(times)),
		stats:   make(map[string]bucketStats, len(models.AggregationPeriods)),
		buckets: make(map[string]map[time.Time]int64, len(models.AggregationPeriods)),
	}
	if len(times) == 0 {
		return g
	}

	g.first = times[0]
	g.last = times[0]
	for _, granularity := range models.AggregationPeriods {
		g.buckets[granularity] = make(map[time.Time]int64)
	}
	for _, t := range times {
		if t.Before(g.first) {
			g.first = t
		}
		if t.After(g.last) {
			g.last = t
		}
		for _, granularity := range models.AggregationPeriods {
			g.buckets[granularity][bucketStart(t, granularity)]++
		}
	}
	for _, granularity := range models.AggregationPeriods {
		g.stats[granularity] = summarize(g.buckets[granularity])
	}
	return g
}

// bucketStart maps a candle time to its bucket: weeks start on Monday and
// months on the first, all in UTC.
func bucketStart(t time.Time, granularity string) time.Time {
	t = t.UTC()
	switch granularity {
	case "minutes":
		return t.Truncate(time.Minute)
	case "hours":
		return t.Truncate(time.Hour)
	case "days":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "weeks":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case "months":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// summarize reduces a bucket count map to min/max/median. Median uses the
// mean of the two middle values for an even number of buckets.
func summarize(buckets map[time.Time]int64) bucketStats {
	counts := make([]int64, 0, len(buckets))
	for _, n := range buckets {
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return bucketStats{}
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })

	st := bucketStats{min: counts[0], max: counts[len(counts)-1]}
	mid := len(counts) / 2
	if len(counts)%2 == 1 {
		st.median = float64(counts[mid])
	} else {
		st.median = float64(counts[mid-1]+counts[mid]) / 2
	}
	return st
}
