package service

import (
	"context"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/model"
	"earnings-backtest/internal/strategy"
	"earnings-backtest/pkg/logger"
)

// Admission rejection reasons. Rejections are expected outcomes of normal
// operation, not errors.
const (
	RejectTradingHalted = "trading_halted"
	RejectPositionCap   = "position_cap"
	RejectMargin        = "margin"
)

// RiskManager computes position sizes, enforces the margin and concurrent
// position limits, and trips the realized-loss circuit breaker.
type RiskManager struct {
	cfg     config.Backtest
	log     *logger.Logger
	sizing  strategy.SizingStrategy
	breadth strategy.BreadthSource
	state   strategy.SizingState
}

// NewRiskManager wires a manager for a single run. breadth may be nil, in
// which case every sizing call falls back to the configured fixed size.
func NewRiskManager(cfg config.Backtest, log *logger.Logger, sizing strategy.SizingStrategy, breadth strategy.BreadthSource) *RiskManager {
	return &RiskManager{cfg: cfg, log: log, sizing: sizing, breadth: breadth}
}

// PositionValue sizes a new entry from the capital held at the moment of
// admission, so compounding is reflected.
func (r *RiskManager) PositionValue(ctx context.Context, pf *model.Portfolio, day time.Time) float64 {
	var snap *strategy.BreadthSnapshot
	if r.breadth != nil {
		if s, ok := r.breadth.Snapshot(day); ok {
			snap = &s
		}
	}
	decision := r.sizing.Size(snap, &r.state, day)
	if decision.Reason != "fixed" {
		r.log.DebugContext(ctx, "position sized",
			logger.DateField("date", day),
			logger.FloatField("size_pct", decision.SizePct),
			logger.StringField("reason", decision.Reason),
		)
	}
	return pf.Capital * decision.SizePct / 100
}

// CanAdmit decides whether a candidate of the given value may enter today.
// openMarketValue is the shares-times-mark total over all open positions. The
// returned reason is empty on admission.
func (r *RiskManager) CanAdmit(pf *model.Portfolio, rs *model.RiskState, positionValue, openMarketValue float64) (bool, string) {
	if rs.TradingHalted {
		return false, RejectTradingHalted
	}
	if len(pf.Open) >= r.cfg.MaxConcurrentPositions {
		return false, RejectPositionCap
	}
	if openMarketValue+positionValue > pf.Capital*r.cfg.MarginRatio {
		return false, RejectMargin
	}
	return true, ""
}

// RecordRealized feeds a realized pnl into the circuit breaker. Only losses
// accumulate; once cumulative realized losses exceed risk_limit_pct of the
// starting capital, no new positions are admitted for the rest of the run.
// Existing positions keep stepping until they close naturally.
func (r *RiskManager) RecordRealized(ctx context.Context, rs *model.RiskState, initialCapital, pnl float64, day time.Time) {
	if pnl >= 0 {
		return
	}
	rs.CumulativeRealizedLoss += -pnl
	if rs.TradingHalted {
		return
	}
	if rs.CumulativeRealizedLossPct(initialCapital) > r.cfg.RiskLimitPct {
		rs.TradingHalted = true
		rs.HaltTriggeredDate = day
		r.log.WarnContext(ctx, "risk circuit breaker tripped, halting new admissions",
			logger.DateField("date", day),
			logger.FloatField("cumulative_loss_pct", rs.CumulativeRealizedLossPct(initialCapital)),
			logger.FloatField("risk_limit_pct", r.cfg.RiskLimitPct),
		)
	}
}
