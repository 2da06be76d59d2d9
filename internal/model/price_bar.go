package model

import "time"

// PriceBar is one daily OHLCV bar. This is the single canonical price schema:
// every component reads these field names, nothing branches on alternate
// spellings from provider payloads.
type PriceBar struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Symbol string    `gorm:"not null;uniqueIndex:idx_price_symbol_date" json:"symbol"`
	Date   time.Time `gorm:"not null;uniqueIndex:idx_price_symbol_date" json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

func (PriceBar) TableName() string {
	return "price_bars"
}
