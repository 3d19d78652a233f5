package summary

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"algodata/internal/models"
	gormrepository "algodata/internal/repository/gorm"
	"algodata/internal/upsert"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	err = db.AutoMigrate(
		&models.Symbol{},
		&models.Source{},
		&models.SourceSymbol{},
		&models.SourcePeriod{},
		&models.Candle{},
		&models.SummaryBatch{},
		&models.SummaryMetric{},
		&models.SummaryMetricAllSources{},
		&models.SummaryAggregation{},
	)
	require.NoError(t, err, "failed to migrate tables")

	return db
}

func newService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	clock := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	return &Service{
		Repo:            gormrepository.New(db),
		Engine:          upsert.New(db),
		Logger:          zap.NewNop(),
		UpsertBatchSize: 100,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
}

type seeded struct {
	symbol *models.Symbol
	link   *models.SourceSymbol
}

func seedSourceSymbol(t *testing.T, db *gorm.DB, sourceName, symbolName, period string) seeded {
	t.Helper()

	source := &models.Source{Name: sourceName, ConnectorName: "fake", Active: true}
	require.NoError(t, db.Create(source).Error)
	symbol := &models.Symbol{Name: symbolName, InstrumentType: models.InstrumentForex}
	require.NoError(t, db.FirstOrCreate(symbol, models.Symbol{Name: symbolName}).Error)
	link := &models.SourceSymbol{SourceID: source.ID, SymbolID: symbol.ID, RetrievePriceData: true}
	require.NoError(t, db.Create(link).Error)
	sp := &models.SourcePeriod{
		SourceID:  source.ID,
		Period:    period,
		StartFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
	}
	require.NoError(t, db.Create(sp).Error)

	return seeded{symbol: symbol, link: link}
}

func seedCandlesAt(t *testing.T, db *gorm.DB, sourceSymbolID uint64, period string, times []time.Time) {
	t.Helper()

	price := decimal.RequireFromString("1.5")
	rows := make([]models.Candle, 0, len(times))
	for _, ts := range times {
		rows = append(rows, models.Candle{
			SourceSymbolID: sourceSymbolID,
			Time:           ts,
			Period:         period,
			BidOpen:        price, BidHigh: price, BidLow: price, BidClose: price,
			AskOpen: price, AskHigh: price, AskLow: price, AskClose: price,
			Volume: 1,
		})
	}
	require.NoError(t, db.CreateInBatches(rows, 200).Error)
}

func minuteTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func TestRunBatchComputesMetrics(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	s := seedSourceSymbol(t, db, "src-a", "GBPUSD", "1M")

	// Ten bars on Jan 1 starting at midnight, five more on Jan 2.
	day1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day1, 10))
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day2, 5))

	require.NoError(t, svc.RunBatch(context.Background()))

	var batch models.SummaryBatch
	require.NoError(t, db.First(&batch).Error)
	assert.Equal(t, models.SummaryStatusComplete, batch.Status)

	var metric models.SummaryMetric
	require.NoError(t, db.Where("summary_batch_id = ?", batch.ID).First(&metric).Error)
	assert.Equal(t, s.link.ID, metric.SourceSymbolID)
	assert.Equal(t, "1M", metric.Period)
	assert.True(t, metric.FirstCandle.Equal(day1))
	assert.True(t, metric.LastCandle.Equal(day2.Add(4*time.Minute)))
	assert.EqualValues(t, 15, metric.NumCandles)

	// One bar per occupied minute bucket.
	assert.EqualValues(t, 1, metric.MinutesMin)
	assert.EqualValues(t, 1, metric.MinutesMax)
	assert.Equal(t, 1.0, metric.MinutesMedian)

	// Day buckets hold 10 and 5 bars.
	assert.EqualValues(t, 5, metric.DaysMin)
	assert.EqualValues(t, 10, metric.DaysMax)
	assert.Equal(t, 7.5, metric.DaysMedian)

	// Both days fall in the same ISO week and month.
	assert.EqualValues(t, 15, metric.WeeksMin)
	assert.EqualValues(t, 15, metric.WeeksMax)
	assert.Equal(t, 15.0, metric.WeeksMedian)
	assert.EqualValues(t, 15, metric.MonthsMin)
	assert.EqualValues(t, 15, metric.MonthsMax)

	// The cross-source grouping mirrors the same numbers for one source.
	var all models.SummaryMetricAllSources
	require.NoError(t, db.Where("summary_batch_id = ?", batch.ID).First(&all).Error)
	assert.Equal(t, s.symbol.ID, all.SymbolID)
	assert.EqualValues(t, 15, all.NumCandles)
	assert.Equal(t, 7.5, all.DaysMedian)
}

func TestRunBatchWritesHeatmapSeries(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	s := seedSourceSymbol(t, db, "src-a", "GBPUSD", "1M")

	day1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day1, 10))
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day2, 5))

	require.NoError(t, svc.RunBatch(context.Background()))

	var batch models.SummaryBatch
	require.NoError(t, db.First(&batch).Error)

	var days []models.SummaryAggregation
	require.NoError(t, db.Where("summary_batch_id = ? AND aggregation_period = ?", batch.ID, "days").
		Order("bucket_time asc").Find(&days).Error)
	require.Len(t, days, 2)
	assert.True(t, days[0].BucketTime.Equal(day1))
	assert.EqualValues(t, 10, days[0].NumCandles)
	assert.True(t, days[1].BucketTime.Equal(day2))
	assert.EqualValues(t, 5, days[1].NumCandles)

	var minutes int64
	require.NoError(t, db.Model(&models.SummaryAggregation{}).
		Where("summary_batch_id = ? AND aggregation_period = ?", batch.ID, "minutes").
		Count(&minutes).Error)
	assert.EqualValues(t, 15, minutes)
}

func TestRunBatchGroupsAcrossSources(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	// Two sources serving the same symbol.
	a := seedSourceSymbol(t, db, "src-a", "GBPUSD", "1M")
	b := seedSourceSymbol(t, db, "src-b", "GBPUSD", "1M")
	require.Equal(t, a.symbol.ID, b.symbol.ID)

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	seedCandlesAt(t, db, a.link.ID, "1M", minuteTimes(day, 10))
	seedCandlesAt(t, db, b.link.ID, "1M", minuteTimes(day.Add(10*time.Minute), 10))

	require.NoError(t, svc.RunBatch(context.Background()))

	var batch models.SummaryBatch
	require.NoError(t, db.First(&batch).Error)

	var perSource int64
	require.NoError(t, db.Model(&models.SummaryMetric{}).
		Where("summary_batch_id = ?", batch.ID).Count(&perSource).Error)
	assert.EqualValues(t, 2, perSource)

	var all models.SummaryMetricAllSources
	require.NoError(t, db.Where("summary_batch_id = ?", batch.ID).First(&all).Error)
	assert.EqualValues(t, 20, all.NumCandles)
}

func TestRunBatchSkipsUnqualifiedCandles(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	s := seedSourceSymbol(t, db, "src-a", "GBPUSD", "1M")

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day, 10))
	// Bars for a period with no active config never reach the summary.
	seedCandlesAt(t, db, s.link.ID, "1H", []time.Time{day, day.Add(time.Hour)})

	require.NoError(t, db.Model(&models.SourceSymbol{}).
		Where("id = ?", s.link.ID).Update("retrieve_price_data", false).Error)
	require.NoError(t, svc.RunBatch(context.Background()))

	var n int64
	require.NoError(t, db.Model(&models.SummaryMetric{}).Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, db.Model(&models.SourceSymbol{}).
		Where("id = ?", s.link.ID).Update("retrieve_price_data", true).Error)
	require.NoError(t, svc.RunBatch(context.Background()))

	var metrics []models.SummaryMetric
	require.NoError(t, db.Find(&metrics).Error)
	require.Len(t, metrics, 1)
	assert.Equal(t, "1M", metrics[0].Period)
}

func TestRunBatchTwiceKeepsGenerationsApart(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	s := seedSourceSymbol(t, db, "src-a", "GBPUSD", "1M")

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	seedCandlesAt(t, db, s.link.ID, "1M", minuteTimes(day, 10))

	ctx := context.Background()
	require.NoError(t, svc.RunBatch(ctx))
	require.NoError(t, svc.RunBatch(ctx))

	var batches []models.SummaryBatch
	require.NoError(t, db.Order("time asc").Find(&batches).Error)
	require.Len(t, batches, 2)

	for _, batch := range batches {
		var n int64
		require.NoError(t, db.Model(&models.SummaryMetric{}).
			Where("summary_batch_id = ?", batch.ID).Count(&n).Error)
		assert.EqualValues(t, 1, n, "batch %d", batch.ID)
	}
}

func TestBucketStart(t *testing.T) {
	// Wednesday Jan 1 2020, mid-afternoon.
	ts := time.Date(2020, 1, 1, 15, 42, 31, 0, time.UTC)

	assert.Equal(t, time.Date(2020, 1, 1, 15, 42, 0, 0, time.UTC), bucketStart(ts, "minutes"))
	assert.Equal(t, time.Date(2020, 1, 1, 15, 0, 0, 0, time.UTC), bucketStart(ts, "hours"))
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), bucketStart(ts, "days"))
	// Weeks start on Monday: Dec 30 2019.
	assert.Equal(t, time.Date(2019, 12, 30, 0, 0, 0, 0, time.UTC), bucketStart(ts, "weeks"))
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), bucketStart(ts, "months"))

	// A Monday maps to itself.
	monday := time.Date(2020, 1, 6, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC), bucketStart(monday, "weeks"))
	// A Sunday maps back to the preceding Monday.
	sunday := time.Date(2020, 1, 5, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2019, 12, 30, 0, 0, 0, 0, time.UTC), bucketStart(sunday, "weeks"))
}

func TestSummarizeMedian(t *testing.T) {
	odd := map[time.Time]int64{
		time.Unix(0, 0): 1,
		time.Unix(1, 0): 9,
		time.Unix(2, 0): 4,
	}
	st := summarize(odd)
	assert.EqualValues(t, 1, st.min)
	assert.EqualValues(t, 9, st.max)
	assert.Equal(t, 4.0, st.median)

	even := map[time.Time]int64{
		time.Unix(0, 0): 1,
		time.Unix(1, 0): 2,
		time.Unix(2, 0): 3,
		time.Unix(3, 0): 10,
	}
	st = summarize(even)
	assert.Equal(t, 2.5, st.median)

	assert.Equal(t, bucketStats{}, summarize(nil))
}
