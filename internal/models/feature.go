package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Feature is a named calculation definition. ConnectorName selects the
// registered feature connector; Lookback is the trailing window of candle
// history the calculation needs (e.g. "30D" for a 30 day moving average);
// Schedule is the cron spec the calculation runs on.
type Feature struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	ConnectorName string `gorm:"type:varchar(50);not null" json:"connector_name"`
	Lookback      string `gorm:"type:varchar(6);not null" json:"lookback"`
	Schedule      string `gorm:"type:varchar(50);not null" json:"schedule"`
	Active        bool   `gorm:"not null;default:true" json:"active"`
}

func (Feature) TableName() string {
	return "features"
}

// FeatureExecution is one configured instance of a Feature over a specific
// set of source-symbol inputs. Single symbol calculations (moving average)
// have one input; multi symbol ones (correlation) have several.
type FeatureExecution struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	FeatureID uint64 `gorm:"not null;index" json:"feature_id"`
	Active    bool   `gorm:"not null;default:true" json:"active"`

	Feature *Feature               `gorm:"foreignKey:FeatureID;constraint:OnDelete:CASCADE" json:"feature,omitempty"`
	Inputs  []FeatureExecutionInput `gorm:"foreignKey:FeatureExecutionID" json:"inputs,omitempty"`
}

func (FeatureExecution) TableName() string {
	return "feature_executions"
}

// FeatureExecutionInput is one (source symbol, candle period) input required
// by a feature execution.
type FeatureExecutionInput struct {
	ID                 uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	FeatureExecutionID uint64 `gorm:"not null;uniqueIndex:idx_execution_input" json:"feature_execution_id"`
	SourceSymbolID     uint64 `gorm:"not null;uniqueIndex:idx_execution_input" json:"source_symbol_id"`
	Period             string `gorm:"type:varchar(3);not null;uniqueIndex:idx_execution_input" json:"period"`
	Active             bool   `gorm:"not null;default:true" json:"active"`

	FeatureExecution *FeatureExecution `gorm:"foreignKey:FeatureExecutionID;constraint:OnDelete:CASCADE" json:"feature_execution,omitempty"`
	SourceSymbol     *SourceSymbol     `gorm:"foreignKey:SourceSymbolID;constraint:OnDelete:CASCADE" json:"source_symbol,omitempty"`
}

func (FeatureExecutionInput) TableName() string {
	return "feature_execution_inputs"
}

// FeatureExecutionResult is one computed value at one candle time. Append
// only: results are never recomputed for a timestamp that already has one.
type FeatureExecutionResult struct {
	ID                 uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	FeatureExecutionID uint64          `gorm:"not null;uniqueIndex:idx_execution_result" json:"feature_execution_id"`
	Time               time.Time       `gorm:"not null;uniqueIndex:idx_execution_result" json:"time"`
	Result             decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"result"`
}

func (FeatureExecutionResult) TableName() string {
	return "feature_execution_results"
}

// ResultColumns is the column order used when feeding result rows to the
// upsert engine.
var ResultColumns = []string{"feature_execution_id", "time", "result"}

// ResultUniqueColumns is the uniqueness constraint for result upserts.
var ResultUniqueColumns = []string{"feature_execution_id", "time"}
