package dto

import (
	"time"

	"earnings-backtest/internal/model"
)

// Candidate is a tradeable earnings event, derived from an EarningsEvent plus
// its surrounding price bars. It exists only while one simulated day's batch
// is being filtered and admitted.
type Candidate struct {
	Symbol     string    `json:"symbol"`
	Sector     string    `json:"sector"`
	ReportDate time.Time `json:"report_date"`
	TradeDate  time.Time `json:"trade_date"`

	SurprisePct          float64 `json:"surprise_pct"`
	GapPct               float64 `json:"gap_pct"`
	EntryPrice           float64 `json:"entry_price"`
	PrevClose            float64 `json:"prev_close"`
	AvgVolume20D         float64 `json:"avg_volume_20d"`
	PreEarningsChangePct float64 `json:"pre_earnings_change_pct"`

	Timing model.MarketTiming `json:"market_timing"`
}
