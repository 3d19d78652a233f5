package models

import "time"

// Summary batch statuses.
const (
	SummaryStatusNotStarted = "not_started"
	SummaryStatusInProgress = "in_progress"
	SummaryStatusComplete   = "complete"
)

// Aggregation granularities for summary statistics.
var AggregationPeriods = []string{"minutes", "hours", "days", "weeks", "months"}

// SummaryBatch is one run of the summary aggregation job. Its derived rows
// are pure projections of candle data: safe to discard and regenerate.
type SummaryBatch struct {
	ID     uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Time   time.Time `gorm:"uniqueIndex;not null" json:"time"`
	Status string    `gorm:"type:varchar(20);not null" json:"status"`
}

func (SummaryBatch) TableName() string {
	return "summary_batches"
}

// SummaryMetric holds per source-symbol-and-period coverage statistics: first
// and last candle time, total count, and min/max/median candles per bucket
// for each aggregation granularity.
type SummaryMetric struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SummaryBatchID uint64    `gorm:"not null;uniqueIndex:idx_summary_metric" json:"summary_batch_id"`
	SourceSymbolID uint64    `gorm:"not null;uniqueIndex:idx_summary_metric" json:"source_symbol_id"`
	Period         string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_summary_metric" json:"period"`
	FirstCandle    time.Time `gorm:"not null" json:"first_candle"`
	LastCandle     time.Time `gorm:"not null" json:"last_candle"`
	NumCandles     int64     `gorm:"not null" json:"num_candles"`

	MinutesMin    int64   `gorm:"not null" json:"minutes_min"`
	MinutesMax    int64   `gorm:"not null" json:"minutes_max"`
	MinutesMedian float64 `gorm:"not null" json:"minutes_median"`
	HoursMin      int64   `gorm:"not null" json:"hours_min"`
	HoursMax      int64   `gorm:"not null" json:"hours_max"`
	HoursMedian   float64 `gorm:"not null" json:"hours_median"`
	DaysMin       int64   `gorm:"not null" json:"days_min"`
	DaysMax       int64   `gorm:"not null" json:"days_max"`
	DaysMedian    float64 `gorm:"not null" json:"days_median"`
	WeeksMin      int64   `gorm:"not null" json:"weeks_min"`
	WeeksMax      int64   `gorm:"not null" json:"weeks_max"`
	WeeksMedian   float64 `gorm:"not null" json:"weeks_median"`
	MonthsMin     int64   `gorm:"not null" json:"months_min"`
	MonthsMax     int64   `gorm:"not null" json:"months_max"`
	MonthsMedian  float64 `gorm:"not null" json:"months_median"`
}

func (SummaryMetric) TableName() string {
	return "summary_metrics"
}

// SummaryMetricAllSources is the same statistic keyed by symbol and period
// across all sources.
type SummaryMetricAllSources struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SummaryBatchID uint64    `gorm:"not null;uniqueIndex:idx_summary_metric_all" json:"summary_batch_id"`
	SymbolID       uint64    `gorm:"not null;uniqueIndex:idx_summary_metric_all" json:"symbol_id"`
	Period         string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_summary_metric_all" json:"period"`
	FirstCandle    time.Time `gorm:"not null" json:"first_candle"`
	LastCandle     time.Time `gorm:"not null" json:"last_candle"`
	NumCandles     int64     `gorm:"not null" json:"num_candles"`

	MinutesMin    int64   `gorm:"not null" json:"minutes_min"`
	MinutesMax    int64   `gorm:"not null" json:"minutes_max"`
	MinutesMedian float64 `gorm:"not null" json:"minutes_median"`
	HoursMin      int64   `gorm:"not null" json:"hours_min"`
	HoursMax      int64   `gorm:"not null" json:"hours_max"`
	HoursMedian   float64 `gorm:"not null" json:"hours_median"`
	DaysMin       int64   `gorm:"not null" json:"days_min"`
	DaysMax       int64   `gorm:"not null" json:"days_max"`
	DaysMedian    float64 `gorm:"not null" json:"days_median"`
	WeeksMin      int64   `gorm:"not null" json:"weeks_min"`
	WeeksMax      int64   `gorm:"not null" json:"weeks_max"`
	WeeksMedian   float64 `gorm:"not null" json:"weeks_median"`
	MonthsMin     int64   `gorm:"not null" json:"months_min"`
	MonthsMax     int64   `gorm:"not null" json:"months_max"`
	MonthsMedian  float64 `gorm:"not null" json:"months_median"`
}

func (SummaryMetricAllSources) TableName() string {
	return "summary_metrics_all_sources"
}

// SummaryAggregation is the literal per-bucket candle count series used for
// heatmap rendering.
type SummaryAggregation struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SummaryBatchID    uint64    `gorm:"not null;uniqueIndex:idx_summary_agg" json:"summary_batch_id"`
	SourceSymbolID    uint64    `gorm:"not null;uniqueIndex:idx_summary_agg" json:"source_symbol_id"`
	Period            string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_summary_agg" json:"period"`
	AggregationPeriod string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_summary_agg" json:"aggregation_period"`
	BucketTime        time.Time `gorm:"not null;uniqueIndex:idx_summary_agg" json:"bucket_time"`
	NumCandles        int64     `gorm:"not null" json:"num_candles"`
}

func (SummaryAggregation) TableName() string {
	return "summary_aggregations"
}

// Column orders and uniqueness constraints used when feeding summary rows to
// the upsert engine.
var (
	SummaryMetricColumns = []string{
		"summary_batch_id", "source_symbol_id", "period",
		"first_candle", "last_candle", "num_candles",
		"minutes_min", "minutes_max", "minutes_median",
		"hours_min", "hours_max", "hours_median",
		"days_min", "days_max", "days_median",
		"weeks_min", "weeks_max", "weeks_median",
		"months_min", "months_max", "months_median",
	}
	SummaryMetricUniqueColumns = []string{"summary_batch_id", "source_symbol_id", "period"}

	SummaryMetricAllSourcesColumns = []string{
		"summary_batch_id", "symbol_id", "period",
		"first_candle", "last_candle", "num_candles",
		"minutes_min", "minutes_max", "minutes_median",
		"hours_min", "hours_max", "hours_median",
		"days_min", "days_max", "days_median",
		"weeks_min", "weeks_max", "weeks_median",
		"months_min", "months_max", "months_median",
	}
	SummaryMetricAllSourcesUniqueColumns = []string{"summary_batch_id", "symbol_id", "period"}

	SummaryAggregationColumns = []string{
		"summary_batch_id", "source_symbol_id", "period",
		"aggregation_period", "bucket_time", "num_candles",
	}
	SummaryAggregationUniqueColumns = []string{
		"summary_batch_id", "source_symbol_id", "period", "aggregation_period", "bucket_time",
	}
)
