package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"algodata/internal/connector"
	cronrunner "algodata/internal/cron"
	"algodata/internal/feature"
	"algodata/internal/models"
	"algodata/internal/pricedata"
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

func newReconciler(t *testing.T, db *gorm.DB) *Reconciler {
	t.Helper()

	logger := zap.NewNop()
	store := gormrepository.New(db)
	registry := connector.NewRegistry()
	engine := upsert.New(db)
	runner := cronrunner.New(logger, context.Background())
	prices := &pricedata.Service{Repo: store, Registry: registry, Engine: engine, Logger: logger}
	features := &feature.Service{Repo: store, Registry: registry, Engine: engine, Logger: logger}
	return New(runner, store, prices, features, logger)
}

func seedSourcePeriod(t *testing.T, db *gorm.DB, name, period string, active bool) *models.SourcePeriod {
	t.Helper()

	source := &models.Source{Name: name, ConnectorName: "fake", Active: true}
	require.NoError(t, db.Create(source).Error)
	sp := &models.SourcePeriod{
		SourceID:  source.ID,
		Period:    period,
		StartFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:    active,
	}
	require.NoError(t, db.Create(sp).Error)
	return sp
}

func seedExecution(t *testing.T, db *gorm.DB, name, schedule string) *models.FeatureExecution {
	t.Helper()

	feat := &models.Feature{
		Name:          name,
		ConnectorName: "sma",
		Lookback:      "1M",
		Schedule:      schedule,
		Active:        true,
	}
	require.NoError(t, db.Create(feat).Error)
	exec := &models.FeatureExecution{Name: name + "-exec", FeatureID: feat.ID, Active: true}
	require.NoError(t, db.Create(exec).Error)
	return exec
}

func TestReconcileAddsAndRemovesRetrievalEntries(t *testing.T) {
	db := setupTestDB(t)
	r := newReconciler(t, db)
	ctx := context.Background()

	sp := seedSourcePeriod(t, db, "src-a", "1M", true)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 1, r.EntryCount())

	// Converging twice is stable.
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 1, r.EntryCount())

	require.NoError(t, db.Model(sp).Update("active", false).Error)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 0, r.EntryCount())
}

func TestReconcileSkipsInactiveSources(t *testing.T) {
	db := setupTestDB(t)
	r := newReconciler(t, db)
	ctx := context.Background()

	sp := seedSourcePeriod(t, db, "src-a", "1M", true)
	require.NoError(t, db.Model(&models.Source{}).
		Where("id = ?", sp.SourceID).Update("active", false).Error)

	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 0, r.EntryCount())
}

func TestReconcileManagesFeatureEntries(t *testing.T) {
	db := setupTestDB(t)
	r := newReconciler(t, db)
	ctx := context.Background()

	exec := seedExecution(t, db, "sma", "@every 1m")
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 1, r.EntryCount())

	require.NoError(t, db.Model(exec).Update("active", false).Error)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 0, r.EntryCount())
}

func TestReconcileReplacesChangedSpecs(t *testing.T) {
	db := setupTestDB(t)
	r := newReconciler(t, db)
	ctx := context.Background()

	exec := seedExecution(t, db, "sma", "@every 1m")
	require.NoError(t, r.Reconcile(ctx))
	require.Equal(t, 1, r.EntryCount())

	require.NoError(t, db.Model(&models.Feature{}).
		Where("id = ?", exec.FeatureID).Update("schedule", "@every 5m").Error)
	require.NoError(t, r.Reconcile(ctx))
	assert.Equal(t, 1, r.EntryCount())

	r.mu.Lock()
	entry := r.entries[fmt.Sprintf("feature:%d", exec.ID)]
	r.mu.Unlock()
	assert.Equal(t, "@every 5m", entry.spec)
}

func TestReconcileReportsInvalidSpecs(t *testing.T) {
	db := setupTestDB(t)
	r := newReconciler(t, db)
	ctx := context.Background()

	seedExecution(t, db, "good", "@every 1m")
	seedExecution(t, db, "bad", "not a cron spec")

	err := r.Reconcile(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid specs")
	assert.Equal(t, 1, r.EntryCount())
}
