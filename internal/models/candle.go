package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bar for a source symbol. The (source_symbol, time,
// period) key is what retrieval upserts converge on: a re-retrieved or
// resampled bar updates the existing row instead of duplicating it.
type Candle struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceSymbolID uint64    `gorm:"not null;uniqueIndex:idx_candle_key" json:"source_symbol_id"`
	Time           time.Time `gorm:"not null;uniqueIndex:idx_candle_key;index" json:"time"`
	Period         string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_candle_key" json:"period"`

	BidOpen  decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"bid_open"`
	BidHigh  decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"bid_high"`
	BidLow   decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"bid_low"`
	BidClose decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"bid_close"`
	AskOpen  decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"ask_open"`
	AskHigh  decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"ask_high"`
	AskLow   decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"ask_low"`
	AskClose decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"ask_close"`

	Volume int64 `gorm:"not null" json:"volume"`

	SourceSymbol *SourceSymbol `gorm:"foreignKey:SourceSymbolID;constraint:OnDelete:CASCADE" json:"source_symbol,omitempty"`
}

func (Candle) TableName() string {
	return "candles"
}

// CandleColumns is the column order used when feeding candle rows to the
// upsert engine.
var CandleColumns = []string{
	"source_symbol_id", "time", "period",
	"bid_open", "bid_high", "bid_low", "bid_close",
	"ask_open", "ask_high", "ask_low", "ask_close",
	"volume",
}

// CandleUniqueColumns is the uniqueness constraint for candle upserts.
var CandleUniqueColumns = []string{"source_symbol_id", "time", "period"}
