package models

import (
	"time"

	"gorm.io/datatypes"
)

// Source is an external data provider. ConnectorName selects the registered
// source connector implementation; ConnectionParams carries the provider
// specific settings validated by that connector at startup.
type Source struct {
	ID               uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string            `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	ConnectorName    string            `gorm:"type:varchar(50);not null" json:"connector_name"`
	ConnectionParams datatypes.JSONMap `gorm:"type:jsonb" json:"connection_params"`
	Active           bool              `gorm:"not null;default:true" json:"active"`
}

func (Source) TableName() string {
	return "sources"
}

// SourceSymbol links a Source to a Symbol. RetrievePriceData gates the price
// retrieval pipeline; SymbolInfo holds provider metadata such as tick size.
type SourceSymbol struct {
	ID                uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID          uint64            `gorm:"not null;uniqueIndex:idx_source_symbol" json:"source_id"`
	SymbolID          uint64            `gorm:"not null;uniqueIndex:idx_source_symbol" json:"symbol_id"`
	RetrievePriceData bool              `gorm:"not null;default:true" json:"retrieve_price_data"`
	SymbolInfo        datatypes.JSONMap `gorm:"type:jsonb" json:"symbol_info"`

	Source *Source `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"source,omitempty"`
	Symbol *Symbol `gorm:"foreignKey:SymbolID;constraint:OnDelete:CASCADE" json:"symbol,omitempty"`
}

func (SourceSymbol) TableName() string {
	return "source_symbols"
}

// SourcePeriod declares that candles of one period are collected from a
// source, from StartFrom onwards, while Active.
type SourcePeriod struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID  uint64    `gorm:"not null;uniqueIndex:idx_source_period" json:"source_id"`
	Period    string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_source_period" json:"period"`
	StartFrom time.Time `gorm:"not null" json:"start_from"`
	Active    bool      `gorm:"not null;default:false" json:"active"`

	Source *Source `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"source,omitempty"`
}

func (SourcePeriod) TableName() string {
	return "source_periods"
}
