package model

import (
	"math"
	"time"
)

// MarketTiming indicates when during the session an earnings report was
// released. Unknown timings are treated like after-close so the trade date
// resolves to the later day and never leaks future information.
type MarketTiming string

const (
	TimingBeforeOpen MarketTiming = "before_open"
	TimingAfterClose MarketTiming = "after_close"
	TimingUnknown    MarketTiming = "unknown"
)

// EarningsEvent is a single reported earnings result. Immutable once ingested.
type EarningsEvent struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Symbol      string       `gorm:"not null;uniqueIndex:idx_earnings_symbol_date" json:"symbol"`
	ReportDate  time.Time    `gorm:"not null;uniqueIndex:idx_earnings_symbol_date" json:"report_date"`
	Country     string       `gorm:"not null" json:"country"`
	ActualEPS   float64      `json:"actual_eps"`
	EstimateEPS float64      `json:"estimate_eps"`
	Timing      MarketTiming `gorm:"not null;default:unknown" json:"market_timing"`
	Sector      string       `json:"sector"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (EarningsEvent) TableName() string {
	return "earnings_events"
}

// SurprisePct returns the surprise percentage, (actual-estimate)/|estimate|*100.
// The second return value is false when the estimate denominator is degenerate.
func (e EarningsEvent) SurprisePct() (float64, bool) {
	if e.EstimateEPS == 0 || math.IsNaN(e.EstimateEPS) || math.IsNaN(e.ActualEPS) {
		return 0, false
	}
	return (e.ActualEPS - e.EstimateEPS) / math.Abs(e.EstimateEPS) * 100, true
}
