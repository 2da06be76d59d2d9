package model

import (
	"time"

	"gorm.io/datatypes"
)

// BacktestRun is a persisted simulation result header. The full parameter
// snapshot is stored as JSON so past runs stay reproducible after config
// defaults change.
type BacktestRun struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	StartDate      time.Time      `gorm:"not null" json:"start_date"`
	EndDate        time.Time      `gorm:"not null" json:"end_date"`
	InitialCapital float64        `gorm:"not null" json:"initial_capital"`
	FinalEquity    float64        `json:"final_equity"`
	TotalTrades    int            `json:"total_trades"`
	Config         datatypes.JSON `json:"config"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`

	Trades []BacktestTrade `gorm:"foreignKey:RunID" json:"trades,omitempty"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

// BacktestTrade is one row of the persisted closed-trade ledger.
type BacktestTrade struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       uint      `gorm:"not null;index" json:"run_id"`
	Symbol      string    `gorm:"not null" json:"symbol"`
	EntryDate   time.Time `gorm:"not null" json:"entry_date"`
	ExitDate    time.Time `gorm:"not null" json:"exit_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Shares      int       `json:"shares"`
	Pnl         float64   `json:"pnl"`
	PnlPct      float64   `json:"pnl_pct"`
	ExitReason  string    `json:"exit_reason"`
	HoldingDays int       `json:"holding_days"`
	Sector      string    `json:"sector"`
}

func (BacktestTrade) TableName() string {
	return "backtest_trades"
}
