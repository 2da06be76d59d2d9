package service

import (
	"math"

	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/utils"
)

// calcSummary aggregates the closed-trade ledger and equity curve into
// portfolio-level performance metrics.
func calcSummary(trades []dto.TradeRecord, pf *model.Portfolio) dto.Summary {
	summary := dto.Summary{
		InitialCapital: pf.InitialCapital,
		FinalEquity:    pf.InitialCapital,
	}
	if len(pf.EquityCurve) > 0 {
		summary.FinalEquity = pf.EquityCurve[len(pf.EquityCurve)-1].Equity
	}
	if pf.InitialCapital > 0 {
		summary.TotalReturnPct = utils.Round2((summary.FinalEquity - pf.InitialCapital) / pf.InitialCapital * 100)
	}
	summary.MaxDrawdownPct = maxDrawdown(pf.EquityCurve)
	summary.SharpeRatio = sharpeRatio(pf.EquityCurve)

	if len(trades) == 0 {
		return summary
	}

	var totalReturn, totalProfit, totalLoss float64
	var totalHolding int
	summary.BestTradePct = math.Inf(-1)
	summary.WorstTradePct = math.Inf(1)

	for _, trade := range trades {
		summary.TotalTrades++
		totalReturn += trade.PnlPct
		totalHolding += trade.HoldingDays

		if trade.Pnl > 0 {
			summary.WinningTrades++
			totalProfit += trade.Pnl
		} else {
			summary.LosingTrades++
			totalLoss += -trade.Pnl
		}

		if trade.PnlPct > summary.BestTradePct {
			summary.BestTradePct = trade.PnlPct
		}
		if trade.PnlPct < summary.WorstTradePct {
			summary.WorstTradePct = trade.PnlPct
		}
	}

	summary.WinRate = utils.Round2(float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100)
	summary.AvgReturnPct = utils.Round2(totalReturn / float64(summary.TotalTrades))
	summary.AvgHoldingDays = utils.Round2(float64(totalHolding) / float64(summary.TotalTrades))
	if totalLoss != 0 {
		summary.ProfitFactor = utils.Round2(totalProfit / totalLoss)
	}

	return summary
}

// maxDrawdown is the largest peak-to-trough equity decline, in percent.
func maxDrawdown(curve []model.EquityPoint) float64 {
	var peak, worst float64
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			dd := (peak - point.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return utils.Round2(worst)
}

// sharpeRatio is the annualized mean-over-stddev of daily equity returns,
// with a zero risk-free rate.
func sharpeRatio(curve []model.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	const tradingDaysPerYear = 252
	return utils.Round2(mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear))
}
