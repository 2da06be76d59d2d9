package service

import (
	"context"
	"math"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"

	"github.com/thrasher-corp/gct-ta/indicators"
)

// TradeExecutor owns the per-position exit state machine. It advances each
// open position by one trading day and decides if, how and why it closes.
//
// Daily exit precedence, first match wins:
//  1. pending trailing-stop fill at the open
//  2. stop-loss on the day's low
//  3. partial profit on the first day after entry
//  4. trailing stop trigger (fills at the next open)
//  5. max holding period
type TradeExecutor struct {
	cfg config.Backtest
	log *logger.Logger
}

func NewTradeExecutor(cfg config.Backtest, log *logger.Logger) *TradeExecutor {
	return &TradeExecutor{cfg: cfg, log: log}
}

// OpenPosition creates a position for an admitted candidate. Entry executes at
// the candidate's entry price adjusted by slippage against the trader. Returns
// nil when sizing floors to zero shares; such a position is never created.
func (e *TradeExecutor) OpenPosition(cand dto.Candidate, positionValue float64) *model.Position {
	adjustedEntry := cand.EntryPrice * (1 + e.cfg.SlippagePct/100)
	shares := utils.FloorShares(positionValue, adjustedEntry)
	if shares <= 0 {
		return nil
	}
	return &model.Position{
		Symbol:          cand.Symbol,
		Sector:          cand.Sector,
		EntryDate:       utils.Day(cand.TradeDate),
		EntryPrice:      adjustedEntry,
		SharesOpened:    shares,
		SharesRemaining: shares,
		Status:          model.StatusOpen,
		SurprisePct:     cand.SurprisePct,
		GapPct:          cand.GapPct,
	}
}

// Step evaluates one position against one trading day's bar. It returns the
// ledger records produced that day: at most one partial sale or one final
// close. A day with no bar for the symbol leaves the position untouched and
// reports DataUnavailable.
func (e *TradeExecutor) Step(ctx context.Context, pos *model.Position, series *priceSeries, day time.Time) ([]dto.TradeRecord, error) {
	i, ok := series.indexOf(day)
	if !ok {
		return nil, &dto.DataUnavailableError{Symbol: pos.Symbol, Date: day, Field: "daily_bar"}
	}
	entryIdx, ok := series.indexOf(pos.EntryDate)
	if !ok {
		return nil, &dto.DataUnavailableError{Symbol: pos.Symbol, Date: pos.EntryDate, Field: "entry_bar"}
	}
	bar := series.bars[i]
	held := i - entryIdx

	// 1. A trailing stop triggered on the previous day fills at today's open.
	if pos.TrailingExitPending {
		return []dto.TradeRecord{e.closeAll(pos, day, bar.Open, model.ExitTrailingStop, held)}, nil
	}

	// 2. Stop-loss. If the bar gaps below the stop level the realized exit is
	// the open, not the theoretical stop.
	stopPrice := pos.EntryPrice * (1 - e.cfg.StopLossPct/100)
	if bar.Low <= stopPrice {
		exitPrice := stopPrice
		if bar.Open < stopPrice {
			exitPrice = bar.Open
		}
		return []dto.TradeRecord{e.closeAll(pos, day, exitPrice, model.ExitStopLoss, held)}, nil
	}

	// 3. Partial profit, evaluable only on the first trading day after entry.
	if e.cfg.PartialProfitEnabled && !pos.PartialProfitTaken && held == 1 &&
		bar.Close >= pos.EntryPrice*(1+e.cfg.PartialProfitTriggerPct/100) {
		sellShares := int(math.Floor(float64(pos.SharesOpened) * e.cfg.PartialProfitSellRatio))
		if sellShares > 0 && sellShares < pos.SharesRemaining {
			pos.SharesRemaining -= sellShares
			pos.PartialProfitTaken = true
			pos.Status = model.StatusPartiallyClosed
			e.log.DebugContext(ctx, "partial profit taken",
				logger.StringField("symbol", pos.Symbol),
				logger.DateField("date", day),
				logger.IntField("shares_sold", sellShares),
			)
			return []dto.TradeRecord{e.record(pos, day, bar.Close, model.ExitPartialProfit, sellShares, held)}, nil
		}
	}

	// 4. Trailing stop: close below the moving average of the trail window
	// ending on the previous day schedules an exit at the next open.
	if ma, ok := e.trailingAverage(series, i); ok && bar.Close < ma {
		pos.TrailingExitPending = true
		return nil, nil
	}

	// 5. Max holding period, counted in trading days.
	if held >= e.cfg.MaxHoldingDays {
		return []dto.TradeRecord{e.closeAll(pos, day, bar.Close, model.ExitMaxHolding, held)}, nil
	}

	return nil, nil
}

// ForceClose liquidates a position at the most recent close available at or
// before day. Used on the final simulated day. The fill must land on a bar
// strictly after the entry bar; a position whose entry bar is the last bar
// on record cannot be closed and stays open.
func (e *TradeExecutor) ForceClose(pos *model.Position, series *priceSeries, day time.Time) (dto.TradeRecord, error) {
	i, ok := series.indexAtOrBefore(day)
	if !ok {
		return dto.TradeRecord{}, &dto.DataUnavailableError{Symbol: pos.Symbol, Date: day, Field: "final_close"}
	}
	entryIdx, entryOK := series.indexOf(pos.EntryDate)
	held := 0
	if entryOK {
		if i <= entryIdx {
			return dto.TradeRecord{}, &dto.DataUnavailableError{Symbol: pos.Symbol, Date: day, Field: "final_close"}
		}
		held = i - entryIdx
	}
	bar := series.bars[i]
	return e.closeAll(pos, utils.Day(bar.Date), bar.Close, model.ExitEndOfBacktest, held), nil
}

// trailingAverage computes the simple moving average of the trail window's
// closes ending at the bar before index i. Not evaluable without a full
// window of prior history.
func (e *TradeExecutor) trailingAverage(series *priceSeries, i int) (float64, bool) {
	period := e.cfg.TrailStopMA
	if i < period {
		return 0, false
	}
	window := make([]float64, period)
	for j := 0; j < period; j++ {
		c := series.bars[i-period+j].Close
		if math.IsNaN(c) {
			return 0, false
		}
		window[j] = c
	}
	sma := indicators.SMA(window, period)
	if len(sma) == 0 {
		return 0, false
	}
	return sma[len(sma)-1], true
}

func (e *TradeExecutor) closeAll(pos *model.Position, day time.Time, price float64, reason model.ExitReason, held int) dto.TradeRecord {
	shares := pos.SharesRemaining
	pos.SharesRemaining = 0
	pos.Status = model.StatusClosed
	pos.ExitDate = utils.Day(day)
	pos.ExitPrice = price
	pos.ExitReason = reason
	pos.TrailingExitPending = false
	return e.record(pos, day, price, reason, shares, held)
}

func (e *TradeExecutor) record(pos *model.Position, day time.Time, price float64, reason model.ExitReason, shares, held int) dto.TradeRecord {
	pnl := (price - pos.EntryPrice) * float64(shares)
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	return dto.TradeRecord{
		Symbol:      pos.Symbol,
		EntryDate:   pos.EntryDate,
		ExitDate:    utils.Day(day),
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Shares:      shares,
		Pnl:         utils.Round2(pnl),
		PnlPct:      utils.Round2(pnlPct),
		ExitReason:  reason,
		HoldingDays: held,
		Sector:      pos.Sector,
	}
}
