package service

import (
	"context"
	"math"
	"sort"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"
)

// CandidateFilter turns raw earnings events plus price bars into a ranked,
// capped set of tradeable candidates per calendar day.
type CandidateFilter struct {
	cfg config.Backtest
	log *logger.Logger
}

func NewCandidateFilter(cfg config.Backtest, log *logger.Logger) *CandidateFilter {
	return &CandidateFilter{cfg: cfg, log: log}
}

// BuildCandidates runs both filter stages over the events and returns the
// per-trade-date candidate batches, each sorted by surprise descending with
// symbol as the deterministic tie break and capped at max_candidates_per_day.
func (f *CandidateFilter) BuildCandidates(ctx context.Context, events []model.EarningsEvent, prices *priceBook) map[time.Time][]dto.Candidate {
	byDay := make(map[time.Time][]dto.Candidate)

	survivors := f.fundamentalFilter(ctx, events)
	f.log.InfoContext(ctx, "fundamental filter done",
		logger.IntField("events", len(events)),
		logger.IntField("survivors", len(survivors)),
	)

	accepted := 0
	for _, res := range survivors {
		cand, err := f.technicalFilter(ctx, res, prices)
		if err != nil {
			f.log.DebugContext(ctx, "candidate excluded",
				logger.StringField("symbol", res.event.Symbol),
				logger.DateField("report_date", res.event.ReportDate),
				logger.ErrorField(err),
			)
			continue
		}
		if cand == nil {
			continue
		}
		day := utils.Day(cand.TradeDate)
		byDay[day] = append(byDay[day], *cand)
		accepted++
	}

	for day, batch := range byDay {
		sort.SliceStable(batch, func(i, j int) bool {
			if batch[i].SurprisePct != batch[j].SurprisePct {
				return batch[i].SurprisePct > batch[j].SurprisePct
			}
			return batch[i].Symbol < batch[j].Symbol
		})
		if len(batch) > f.cfg.MaxCandidatesPerDay {
			batch = batch[:f.cfg.MaxCandidatesPerDay]
		}
		byDay[day] = batch
	}

	f.log.InfoContext(ctx, "technical filter done", logger.IntField("candidates", accepted))
	return byDay
}

// fundamentalFilter is stage 1: US listing, minimum surprise, positive actual
// EPS. Events with missing or NaN fields fail the predicate they feed.
func (f *CandidateFilter) fundamentalFilter(ctx context.Context, events []model.EarningsEvent) []stageOneResult {
	out := make([]stageOneResult, 0, len(events))
	for _, ev := range events {
		if ev.Country != "US" {
			continue
		}
		surprise, ok := ev.SurprisePct()
		if !ok {
			f.log.DebugContext(ctx, "candidate excluded",
				logger.StringField("symbol", ev.Symbol),
				logger.DateField("report_date", ev.ReportDate),
				logger.ErrorField(&dto.ArithmeticDegenerateError{Symbol: ev.Symbol, Date: ev.ReportDate, Field: "estimate_eps"}),
			)
			continue
		}
		if surprise < f.cfg.MinSurprisePct {
			continue
		}
		if math.IsNaN(ev.ActualEPS) || ev.ActualEPS <= 0 {
			continue
		}
		out = append(out, stageOneResult{event: ev, surprisePct: surprise})
	}
	return out
}

type stageOneResult struct {
	event       model.EarningsEvent
	surprisePct float64
}

// resolveTradeDate maps a report to its entry day. Before-open reports trade
// on the report date itself, everything else on the symbol's next trading day.
// Unknown timing resolves to the later date to avoid look-ahead bias.
func (f *CandidateFilter) resolveTradeDate(ev model.EarningsEvent, series *priceSeries) (time.Time, error) {
	if ev.Timing == model.TimingBeforeOpen {
		if _, ok := series.barOn(ev.ReportDate); !ok {
			return time.Time{}, &dto.DataUnavailableError{Symbol: ev.Symbol, Date: ev.ReportDate, Field: "trade_date_bar"}
		}
		return utils.Day(ev.ReportDate), nil
	}
	next, ok := series.nextTradingDay(ev.ReportDate)
	if !ok {
		return time.Time{}, &dto.DataUnavailableError{Symbol: ev.Symbol, Date: ev.ReportDate, Field: "next_trading_day"}
	}
	return utils.Day(next.Date), nil
}

// technicalFilter is stage 2: gap, price, liquidity and pre-earnings momentum
// checks using only data available at or before the prior close plus the trade
// day's opening print.
func (f *CandidateFilter) technicalFilter(ctx context.Context, res stageOneResult, prices *priceBook) (*dto.Candidate, error) {
	ev := res.event

	series, ok := prices.get(ev.Symbol)
	if !ok || len(series.bars) == 0 {
		return nil, &dto.DataUnavailableError{Symbol: ev.Symbol, Date: ev.ReportDate, Field: "price_history"}
	}

	tradeDate, err := f.resolveTradeDate(ev, series)
	if err != nil {
		return nil, err
	}

	t, ok := series.indexOf(tradeDate)
	if !ok || t == 0 {
		return nil, &dto.DataUnavailableError{Symbol: ev.Symbol, Date: tradeDate, Field: "trade_date_bar"}
	}
	prev := t - 1
	bar := series.bars[t]
	prevBar := series.bars[prev]

	if prevBar.Close == 0 || math.IsNaN(prevBar.Close) || math.IsNaN(bar.Open) {
		return nil, &dto.ArithmeticDegenerateError{Symbol: ev.Symbol, Date: prevBar.Date, Field: "prev_close"}
	}
	gap := (bar.Open - prevBar.Close) / prevBar.Close * 100

	entryPrice := bar.Open
	if f.cfg.EntryPriceSource == "prev_close" {
		entryPrice = prevBar.Close
	}

	// 20 prior bars are required for both liquidity and momentum checks.
	avgVolume, err := series.avgVolume(prev, 20)
	if err != nil {
		return nil, err
	}
	preChange, err := series.changePct(prev-19, prev)
	if err != nil {
		return nil, err
	}

	switch {
	case gap < 0 || gap > f.cfg.MaxGapPct:
		return nil, nil
	case entryPrice < f.cfg.MinPrice:
		return nil, nil
	case avgVolume < f.cfg.MinVolume:
		return nil, nil
	case preChange < f.cfg.PreEarningsChangePct:
		return nil, nil
	}

	return &dto.Candidate{
		Symbol:               ev.Symbol,
		Sector:               ev.Sector,
		ReportDate:           utils.Day(ev.ReportDate),
		TradeDate:            tradeDate,
		SurprisePct:          res.surprisePct,
		GapPct:               gap,
		EntryPrice:           entryPrice,
		PrevClose:            prevBar.Close,
		AvgVolume20D:         avgVolume,
		PreEarningsChangePct: preChange,
		Timing:               ev.Timing,
	}, nil
}
