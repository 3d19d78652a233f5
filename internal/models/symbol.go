package models

// Instrument classes a Symbol can belong to.
const (
	InstrumentForex  = "FOREX"
	InstrumentCFD    = "CFD"
	InstrumentStock  = "STOCK"
	InstrumentCrypto = "CRYPTO"
)

// Symbol is a tradable instrument, e.g. GBPUSD.
type Symbol struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	InstrumentType string `gorm:"type:varchar(10)" json:"instrument_type"`
}

func (Symbol) TableName() string {
	return "symbols"
}
