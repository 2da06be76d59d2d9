package dto

import (
	"time"

	"earnings-backtest/internal/model"
)

// BacktestRequest carries per-run overrides of the configured window.
type BacktestRequest struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// TradeRecord is one row of the closed-trade ledger. Partial-profit sales and
// final closes are separate rows for the same position; their share counts sum
// to the shares opened.
type TradeRecord struct {
	Symbol      string           `json:"symbol"`
	EntryDate   time.Time        `json:"entry_date"`
	ExitDate    time.Time        `json:"exit_date"`
	EntryPrice  float64          `json:"entry_price"`
	ExitPrice   float64          `json:"exit_price"`
	Shares      int              `json:"shares"`
	Pnl         float64          `json:"pnl"`
	PnlPct      float64          `json:"pnl_pct"`
	ExitReason  model.ExitReason `json:"exit_reason"`
	HoldingDays int              `json:"holding_days"`
	Sector      string           `json:"sector,omitempty"`
}

// Summary aggregates trade-level and portfolio-level performance.
type Summary struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgReturnPct   float64 `json:"avg_return_pct"`
	TotalReturnPct float64 `json:"total_return_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	BestTradePct   float64 `json:"best_trade_pct"`
	WorstTradePct  float64 `json:"worst_trade_pct"`
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
}

// BacktestResult is the full output of one simulation run.
type BacktestResult struct {
	StartDate   time.Time           `json:"start_date"`
	EndDate     time.Time           `json:"end_date"`
	Trades      []TradeRecord       `json:"trades"`
	EquityCurve []model.EquityPoint `json:"equity_curve"`
	Summary     Summary             `json:"summary"`
	Halted      bool                `json:"trading_halted"`
	HaltedDate  *time.Time          `json:"halt_triggered_date,omitempty"`
}
