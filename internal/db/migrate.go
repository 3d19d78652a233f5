package db

import (
	"algodata/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Symbol{},
		&models.Source{},
		&models.SourceSymbol{},
		&models.SourcePeriod{},
		&models.Candle{},
		&models.Feature{},
		&models.FeatureExecution{},
		&models.FeatureExecutionInput{},
		&models.FeatureExecutionResult{},
		&models.SummaryBatch{},
		&models.SummaryMetric{},
		&models.SummaryMetricAllSources{},
		&models.SummaryAggregation{},
	)
}
