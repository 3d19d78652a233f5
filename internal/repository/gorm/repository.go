package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"algodata/internal/models"
	"algodata/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying gorm handle for the upsert engine.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- symbols ----------------------------------------------------------------

func (s *Store) GetSymbolByName(ctx context.Context, name string) (*models.Symbol, error) {
	var item models.Symbol
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateSymbol(ctx context.Context, item *models.Symbol) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListSymbols(ctx context.Context) ([]models.Symbol, error) {
	var items []models.Symbol
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- sources ----------------------------------------------------------------

func (s *Store) GetSource(ctx context.Context, id uint64) (*models.Source, error) {
	var item models.Source
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var item models.Source
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateSource(ctx context.Context, item *models.Source) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSource(ctx context.Context, item *models.Source) error {
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	var items []models.Source
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	var items []models.Source
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- source symbols ---------------------------------------------------------

func (s *Store) GetSourceSymbol(ctx context.Context, sourceID, symbolID uint64) (*models.SourceSymbol, error) {
	var item models.SourceSymbol
	err := s.db.WithContext(ctx).
		Where("source_id = ? AND symbol_id = ?", sourceID, symbolID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSourceSymbol(ctx context.Context, item *models.SourceSymbol) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "symbol_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol_info"}),
	}).Create(item).Error
}

func (s *Store) UpdateSourceSymbol(ctx context.Context, item *models.SourceSymbol) error {
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListSourceSymbols(ctx context.Context, sourceID uint64) ([]models.SourceSymbol, error) {
	var items []models.SourceSymbol
	if err := s.db.WithContext(ctx).
		Preload("Symbol").
		Where("source_id = ?", sourceID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRetrievalSourceSymbols(ctx context.Context, sourceID uint64) ([]models.SourceSymbol, error) {
	var items []models.SourceSymbol
	if err := s.db.WithContext(ctx).
		Preload("Symbol").
		Where("source_id = ? AND retrieve_price_data = ?", sourceID, true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- source periods ---------------------------------------------------------

func (s *Store) GetSourcePeriod(ctx context.Context, id uint64) (*models.SourcePeriod, error) {
	var item models.SourcePeriod
	err := s.db.WithContext(ctx).Preload("Source").First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateSourcePeriod(ctx context.Context, item *models.SourcePeriod) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSourcePeriod(ctx context.Context, item *models.SourcePeriod) error {
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListSourcePeriods(ctx context.Context, sourceID uint64) ([]models.SourcePeriod, error) {
	var items []models.SourcePeriod
	if err := s.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("period asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveSourcePeriods(ctx context.Context) ([]models.SourcePeriod, error) {
	var items []models.SourcePeriod
	if err := s.db.WithContext(ctx).
		Preload("Source").
		Where("active = ?", true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- candles ----------------------------------------------------------------

func (s *Store) LatestCandleTime(ctx context.Context, sourceSymbolID uint64, period string) (*time.Time, error) {
	var items []models.Candle
	err := s.db.WithContext(ctx).
		Where("source_symbol_id = ? AND period = ?", sourceSymbolID, period).
		Order("time desc").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	t := items[0].Time
	return &t, nil
}

func (s *Store) ListCandles(ctx context.Context, params repository.ListCandlesParams) ([]models.Candle, error) {
	query := s.db.WithContext(ctx).Model(&models.Candle{})
	if params.SourceSymbolID != 0 {
		query = query.Where("source_symbol_id = ?", params.SourceSymbolID)
	}
	if params.Period != "" {
		query = query.Where("period = ?", params.Period)
	}
	if params.From != nil {
		query = query.Where("time >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("time <= ?", *params.To)
	}
	limit := params.Limit
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	var items []models.Candle
	if err := query.Order("time asc").Limit(limit).Offset(params.Offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListCandlesFrom(ctx context.Context, sourceSymbolID uint64, period string, from time.Time) ([]models.Candle, error) {
	var items []models.Candle
	if err := s.db.WithContext(ctx).
		Where("source_symbol_id = ? AND period = ? AND time >= ?", sourceSymbolID, period, from).
		Order("time asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListCoverage(ctx context.Context) ([]repository.CandleCoverageRow, error) {
	var rows []repository.CandleCoverageRow
	err := s.db.WithContext(ctx).
		Table("candles AS c").
		Select("c.source_symbol_id AS source_symbol_id, ss.symbol_id AS symbol_id, c.period AS period, c.time AS time").
		Joins("JOIN source_symbols ss ON ss.id = c.source_symbol_id").
		Joins("JOIN source_periods sp ON sp.source_id = ss.source_id AND sp.period = c.period").
		Where("ss.retrieve_price_data = ? AND sp.active = ?", true, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- features ---------------------------------------------------------------

func (s *Store) GetFeature(ctx context.Context, id uint64) (*models.Feature, error) {
	var item models.Feature
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetFeatureByName(ctx context.Context, name string) (*models.Feature, error) {
	var item models.Feature
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateFeature(ctx context.Context, item *models.Feature) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateFeature(ctx context.Context, item *models.Feature) error {
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	var items []models.Feature
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- feature executions -----------------------------------------------------

func (s *Store) GetFeatureExecution(ctx context.Context, id uint64) (*models.FeatureExecution, error) {
	var item models.FeatureExecution
	err := s.db.WithContext(ctx).
		Preload("Feature").
		Preload("Inputs").
		First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateFeatureExecution(ctx context.Context, item *models.FeatureExecution) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateFeatureExecution(ctx context.Context, item *models.FeatureExecution) error {
	return s.db.WithContext(ctx).Omit("Inputs", "Feature").Save(item).Error
}

func (s *Store) ListFeatureExecutions(ctx context.Context) ([]models.FeatureExecution, error) {
	var items []models.FeatureExecution
	if err := s.db.WithContext(ctx).
		Preload("Feature").
		Preload("Inputs").
		Order("name asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveFeatureExecutions(ctx context.Context) ([]models.FeatureExecution, error) {
	var items []models.FeatureExecution
	if err := s.db.WithContext(ctx).
		Preload("Feature").
		Preload("Inputs").
		Where("active = ?", true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- feature watermarking ---------------------------------------------------

func (s *Store) LatestResultTime(ctx context.Context, executionID uint64) (*time.Time, error) {
	var items []models.FeatureExecutionResult
	err := s.db.WithContext(ctx).
		Where("feature_execution_id = ?", executionID).
		Order("time desc").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	t := items[0].Time
	return &t, nil
}

// NextQualifyingTime returns the earliest candle time at which every active
// input of the execution has a candle, optionally restricted to times
// strictly after a previous watermark. Nil means no qualifying time exists.
func (s *Store) NextQualifyingTime(ctx context.Context, executionID uint64, after *time.Time) (*time.Time, error) {
	var inputCount int64
	err := s.db.WithContext(ctx).
		Model(&models.FeatureExecutionInput{}).
		Where("feature_execution_id = ? AND active = ?", executionID, true).
		Count(&inputCount).Error
	if err != nil {
		return nil, err
	}
	if inputCount == 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).
		Table("candles AS c").
		Joins("JOIN feature_execution_inputs fi ON fi.source_symbol_id = c.source_symbol_id AND fi.period = c.period").
		Where("fi.feature_execution_id = ? AND fi.active = ?", executionID, true)
	if after != nil {
		query = query.Where("c.time > ?", *after)
	}

	var times []time.Time
	err = query.
		Group("c.time").
		Having("COUNT(c.time) = ?", inputCount).
		Order("c.time asc").
		Limit(1).
		Pluck("c.time", &times).Error
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, nil
	}
	t := times[0]
	return &t, nil
}

func (s *Store) ListResultsFrom(ctx context.Context, executionID uint64, from time.Time) ([]models.FeatureExecutionResult, error) {
	var items []models.FeatureExecutionResult
	if err := s.db.WithContext(ctx).
		Where("feature_execution_id = ? AND time >= ?", executionID, from).
		Order("time asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- summary batches --------------------------------------------------------

func (s *Store) CreateSummaryBatch(ctx context.Context, item *models.SummaryBatch) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSummaryBatchStatus(ctx context.Context, id uint64, status string) error {
	return s.db.WithContext(ctx).
		Model(&models.SummaryBatch{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *Store) LatestCompleteSummaryBatch(ctx context.Context) (*models.SummaryBatch, error) {
	var items []models.SummaryBatch
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SummaryStatusComplete).
		Order("time desc").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Store) ListSummaryBatches(ctx context.Context, limit int) ([]models.SummaryBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []models.SummaryBatch
	if err := s.db.WithContext(ctx).Order("time desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSummaryMetrics(ctx context.Context, batchID uint64) ([]models.SummaryMetric, error) {
	var items []models.SummaryMetric
	if err := s.db.WithContext(ctx).
		Where("summary_batch_id = ?", batchID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSummaryMetricsAllSources(ctx context.Context, batchID uint64) ([]models.SummaryMetricAllSources, error) {
	var items []models.SummaryMetricAllSources
	if err := s.db.WithContext(ctx).
		Where("summary_batch_id = ?", batchID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSummaryAggregations(ctx context.Context, batchID uint64, aggregationPeriod string) ([]models.SummaryAggregation, error) {
	query := s.db.WithContext(ctx).Where("summary_batch_id = ?", batchID)
	if aggregationPeriod != "" {
		query = query.Where("aggregation_period = ?", aggregationPeriod)
	}
	var items []models.SummaryAggregation
	if err := query.Order("bucket_time asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
