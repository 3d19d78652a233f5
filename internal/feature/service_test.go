package feature

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

	"algodata/internal/connector"
	"algodata/internal/connector/movingaverage"
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
		&models.Feature{},
		&models.FeatureExecution{},
		&models.FeatureExecutionInput{},
		&models.FeatureExecutionResult{},
	)
	require.NoError(t, err, "failed to migrate tables")

	return db
}

func newService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	registry := connector.NewRegistry()
	require.NoError(t, registry.RegisterFeature(movingaverage.Name, movingaverage.New))

	return &Service{
		Repo:     gormrepository.New(db),
		Registry: registry,
		Engine:   upsert.New(db),
		Logger:   zap.NewNop(),
	}
}

func createSourceSymbol(t *testing.T, db *gorm.DB, name string) *models.SourceSymbol {
	t.Helper()

	source := &models.Source{Name: "src-" + name, ConnectorName: "fake", Active: true}
	require.NoError(t, db.Create(source).Error)
	symbol := &models.Symbol{Name: name, InstrumentType: models.InstrumentForex}
	require.NoError(t, db.Create(symbol).Error)
	link := &models.SourceSymbol{SourceID: source.ID, SymbolID: symbol.ID, RetrievePriceData: true}
	require.NoError(t, db.Create(link).Error)
	return link
}

// seedCandles inserts n 1S bars starting at start, with close prices equal to
// the bar index so averages are easy to predict.
func seedCandles(t *testing.T, db *gorm.DB, sourceSymbolID uint64, start time.Time, n int) {
	t.Helper()

	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := decimal.NewFromInt(int64(i))
		candles = append(candles, models.Candle{
			SourceSymbolID: sourceSymbolID,
			Time:           start.Add(time.Duration(i) * time.Second),
			Period:         "1S",
			BidOpen:        price, BidHigh: price, BidLow: price, BidClose: price,
			AskOpen: price, AskHigh: price, AskLow: price, AskClose: price,
			Volume: 1,
		})
	}
	require.NoError(t, db.CreateInBatches(candles, 200).Error)
}

func createExecution(t *testing.T, db *gorm.DB, sourceSymbolID uint64, lookback string) *models.FeatureExecution {
	t.Helper()

	feat := &models.Feature{
		Name:          "sma-" + lookback,
		ConnectorName: movingaverage.Name,
		Lookback:      lookback,
		Schedule:      "@every 1m",
		Active:        true,
	}
	require.NoError(t, db.Create(feat).Error)

	exec := &models.FeatureExecution{
		Name:      "sma-" + lookback + "-exec",
		FeatureID: feat.ID,
		Active:    true,
		Inputs: []models.FeatureExecutionInput{
			{SourceSymbolID: sourceSymbolID, Period: "1S", Active: true},
		},
	}
	require.NoError(t, db.Create(exec).Error)
	return exec
}

func seedResults(t *testing.T, db *gorm.DB, executionID uint64, start time.Time, n int) {
	t.Helper()

	rows := make([]models.FeatureExecutionResult, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.FeatureExecutionResult{
			FeatureExecutionID: executionID,
			Time:               start.Add(time.Duration(i) * time.Second),
			Result:             decimal.NewFromInt(int64(i)),
		})
	}
	require.NoError(t, db.CreateInBatches(rows, 200).Error)
}

func resultCount(t *testing.T, db *gorm.DB, executionID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.FeatureExecutionResult{}).
		Where("feature_execution_id = ?", executionID).Count(&n).Error)
	return n
}

var fixtureStart = time.Date(2020, 1, 1, 0, 0, 1, 0, time.UTC)

func TestNextDataFromFirstRun(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 1000)
	exec := createExecution(t, db, link.ID, "1M")

	// Without prior results the watermark is the first candle itself; the
	// lookback is not subtracted.
	from, err := svc.NextDataFrom(context.Background(), exec.ID, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.True(t, from.Equal(fixtureStart), "from = %s", from)
}

func TestNextDataFromWithPriorResults(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 1000)
	exec := createExecution(t, db, link.ID, "1M")

	// Results through 00:05:00; the next unprocessed candle is 00:05:01 and
	// the 1 minute lookback widens the fetch back to 00:04:01.
	seedResults(t, db, exec.ID, fixtureStart, 300)

	from, err := svc.NextDataFrom(context.Background(), exec.ID, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, from)
	want := time.Date(2020, 1, 1, 0, 4, 1, 0, time.UTC)
	assert.True(t, from.Equal(want), "from = %s, want %s", from, want)
}

func TestNextDataFromExhausted(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 100)
	exec := createExecution(t, db, link.ID, "1M")
	seedResults(t, db, exec.ID, fixtureStart, 100)

	from, err := svc.NextDataFrom(context.Background(), exec.ID, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, from)
}

func TestNextDataFromNoCandles(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	exec := createExecution(t, db, link.ID, "1M")

	from, err := svc.NextDataFrom(context.Background(), exec.ID, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, from)
}

func TestNextDataFromRequiresAllInputs(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	linkA := createSourceSymbol(t, db, "GBPUSD")
	linkB := createSourceSymbol(t, db, "EURUSD")

	// A covers seconds 1..10, B only 3..8: the intersection starts at 3.
	seedCandles(t, db, linkA.ID, fixtureStart, 10)
	seedCandles(t, db, linkB.ID, fixtureStart.Add(2*time.Second), 6)

	exec := createExecution(t, db, linkA.ID, "1S")
	require.NoError(t, db.Create(&models.FeatureExecutionInput{
		FeatureExecutionID: exec.ID,
		SourceSymbolID:     linkB.ID,
		Period:             "1S",
		Active:             true,
	}).Error)

	from, err := svc.NextDataFrom(context.Background(), exec.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.True(t, from.Equal(fixtureStart.Add(2*time.Second)), "from = %s", from)
}

func TestRunComputesMovingAverage(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 1000)
	exec := createExecution(t, db, link.ID, "1M")
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx, exec.ID))

	// 1000 bars with a 60 bar window yield 941 averages.
	assert.EqualValues(t, 941, resultCount(t, db, exec.ID))

	var first models.FeatureExecutionResult
	require.NoError(t, db.Where("feature_execution_id = ?", exec.ID).
		Order("time asc").First(&first).Error)
	assert.True(t, first.Time.Equal(fixtureStart.Add(59*time.Second)), "first result at %s", first.Time)
	// Mean of close prices 0..59.
	assert.True(t, first.Result.Equal(decimal.RequireFromString("29.5")), "first result = %s", first.Result)
}

func TestRunSecondPassIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 500)
	exec := createExecution(t, db, link.ID, "1M")
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx, exec.ID))
	n := resultCount(t, db, exec.ID)
	require.NotZero(t, n)

	require.NoError(t, svc.Run(ctx, exec.ID))
	assert.Equal(t, n, resultCount(t, db, exec.ID))
}

func TestRunIncrementalAppendsOnly(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 1000)
	exec := createExecution(t, db, link.ID, "1M")
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx, exec.ID))
	require.EqualValues(t, 941, resultCount(t, db, exec.ID))

	// Tamper with the final stored result, then append fresh candles. The
	// warmup rows recomputed for the new bars must not rewrite it.
	lastTime := fixtureStart.Add(999 * time.Second)
	marker := decimal.RequireFromString("123456.000000")
	require.NoError(t, db.Model(&models.FeatureExecutionResult{}).
		Where("feature_execution_id = ? AND time = ?", exec.ID, lastTime).
		Update("result", marker).Error)

	seedCandles(t, db, link.ID, fixtureStart.Add(1000*time.Second), 60)
	require.NoError(t, svc.Run(ctx, exec.ID))

	assert.EqualValues(t, 1001, resultCount(t, db, exec.ID))

	var tampered models.FeatureExecutionResult
	require.NoError(t, db.Where("feature_execution_id = ? AND time = ?", exec.ID, lastTime).
		First(&tampered).Error)
	assert.True(t, tampered.Result.Equal(marker), "warmup row rewrote history: %s", tampered.Result)
}

func TestRunSkipsInactive(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 200)
	exec := createExecution(t, db, link.ID, "1M")
	ctx := context.Background()

	require.NoError(t, db.Model(&models.FeatureExecution{}).
		Where("id = ?", exec.ID).Update("active", false).Error)
	require.NoError(t, svc.Run(ctx, exec.ID))
	assert.Zero(t, resultCount(t, db, exec.ID))

	require.NoError(t, db.Model(&models.FeatureExecution{}).
		Where("id = ?", exec.ID).Update("active", true).Error)
	require.NoError(t, db.Model(&models.Feature{}).
		Where("id = ?", exec.FeatureID).Update("active", false).Error)
	require.NoError(t, svc.Run(ctx, exec.ID))
	assert.Zero(t, resultCount(t, db, exec.ID))
}

func TestRunUnknownConnector(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 100)
	exec := createExecution(t, db, link.ID, "1M")

	require.NoError(t, db.Model(&models.Feature{}).
		Where("id = ?", exec.FeatureID).Update("connector_name", "ghost").Error)

	err := svc.Run(context.Background(), exec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrNotRegistered)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	link := createSourceSymbol(t, db, "GBPUSD")
	seedCandles(t, db, link.ID, fixtureStart, 200)

	good := createExecution(t, db, link.ID, "1M")
	bad := createExecution(t, db, link.ID, "9Z")

	err := svc.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.NotZero(t, resultCount(t, db, good.ID))
	assert.Zero(t, resultCount(t, db, bad.ID))
}
