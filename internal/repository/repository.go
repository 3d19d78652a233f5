package repository

import (
	"context"
	"time"

	"algodata/internal/models"
)

// CandleCoverageRow is one qualifying candle occurrence loaded by the summary
// batch: a candle time with its grouping dimensions.
type CandleCoverageRow struct {
	SourceSymbolID uint64    `gorm:"column:source_symbol_id"`
	SymbolID       uint64    `gorm:"column:symbol_id"`
	Period         string    `gorm:"column:period"`
	Time           time.Time `gorm:"column:time"`
}

// ListCandlesParams filters candle reads for the dashboard API.
type ListCandlesParams struct {
	SourceSymbolID uint64
	Period         string
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// Repository is the persistence capability consumed by the pipelines,
// the scheduler reconciler and the API handlers.
type Repository interface {
	// Symbols.
	GetSymbolByName(ctx context.Context, name string) (*models.Symbol, error)
	CreateSymbol(ctx context.Context, item *models.Symbol) error
	ListSymbols(ctx context.Context) ([]models.Symbol, error)

	// Sources and their links.
	GetSource(ctx context.Context, id uint64) (*models.Source, error)
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
	CreateSource(ctx context.Context, item *models.Source) error
	UpdateSource(ctx context.Context, item *models.Source) error
	ListSources(ctx context.Context) ([]models.Source, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)

	GetSourceSymbol(ctx context.Context, sourceID, symbolID uint64) (*models.SourceSymbol, error)
	UpsertSourceSymbol(ctx context.Context, item *models.SourceSymbol) error
	UpdateSourceSymbol(ctx context.Context, item *models.SourceSymbol) error
	ListSourceSymbols(ctx context.Context, sourceID uint64) ([]models.SourceSymbol, error)
	ListRetrievalSourceSymbols(ctx context.Context, sourceID uint64) ([]models.SourceSymbol, error)

	GetSourcePeriod(ctx context.Context, id uint64) (*models.SourcePeriod, error)
	CreateSourcePeriod(ctx context.Context, item *models.SourcePeriod) error
	UpdateSourcePeriod(ctx context.Context, item *models.SourcePeriod) error
	ListSourcePeriods(ctx context.Context, sourceID uint64) ([]models.SourcePeriod, error)
	ListActiveSourcePeriods(ctx context.Context) ([]models.SourcePeriod, error)

	// Candles.
	LatestCandleTime(ctx context.Context, sourceSymbolID uint64, period string) (*time.Time, error)
	ListCandles(ctx context.Context, params ListCandlesParams) ([]models.Candle, error)
	ListCandlesFrom(ctx context.Context, sourceSymbolID uint64, period string, from time.Time) ([]models.Candle, error)
	ListCoverage(ctx context.Context) ([]CandleCoverageRow, error)

	// Features.
	GetFeature(ctx context.Context, id uint64) (*models.Feature, error)
	GetFeatureByName(ctx context.Context, name string) (*models.Feature, error)
	CreateFeature(ctx context.Context, item *models.Feature) error
	UpdateFeature(ctx context.Context, item *models.Feature) error
	ListFeatures(ctx context.Context) ([]models.Feature, error)

	GetFeatureExecution(ctx context.Context, id uint64) (*models.FeatureExecution, error)
	CreateFeatureExecution(ctx context.Context, item *models.FeatureExecution) error
	UpdateFeatureExecution(ctx context.Context, item *models.FeatureExecution) error
	ListFeatureExecutions(ctx context.Context) ([]models.FeatureExecution, error)
	ListActiveFeatureExecutions(ctx context.Context) ([]models.FeatureExecution, error)

	// Feature watermarking.
	LatestResultTime(ctx context.Context, executionID uint64) (*time.Time, error)
	NextQualifyingTime(ctx context.Context, executionID uint64, after *time.Time) (*time.Time, error)
	ListResultsFrom(ctx context.Context, executionID uint64, from time.Time) ([]models.FeatureExecutionResult, error)

	// Summary batches.
	CreateSummaryBatch(ctx context.Context, item *models.SummaryBatch) error
	UpdateSummaryBatchStatus(ctx context.Context, id uint64, status string) error
	LatestCompleteSummaryBatch(ctx context.Context) (*models.SummaryBatch, error)
	ListSummaryBatches(ctx context.Context, limit int) ([]models.SummaryBatch, error)
	ListSummaryMetrics(ctx context.Context, batchID uint64) ([]models.SummaryMetric, error)
	ListSummaryMetricsAllSources(ctx context.Context, batchID uint64) ([]models.SummaryMetricAllSources, error)
	ListSummaryAggregations(ctx context.Context, batchID uint64, aggregationPeriod string) ([]models.SummaryAggregation, error)
}
