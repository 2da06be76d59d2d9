package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/internal/strategy"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEarningsSource struct {
	events []model.EarningsEvent
}

func (f *fakeEarningsSource) GetEarningsEvents(_ context.Context, start, end time.Time) ([]model.EarningsEvent, error) {
	var out []model.EarningsEvent
	for _, ev := range f.events {
		d := utils.Day(ev.ReportDate)
		if d.Before(utils.Day(start)) || d.After(utils.Day(end)) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

type fakePriceSource struct {
	bars map[string][]model.PriceBar
}

func (f *fakePriceSource) GetPriceBars(_ context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	all, ok := f.bars[symbol]
	if !ok {
		return nil, &dto.DataUnavailableError{Symbol: symbol, Field: "price_history"}
	}
	var out []model.PriceBar
	for _, bar := range all {
		d := utils.Day(bar.Date)
		if d.Before(utils.Day(start)) || d.After(utils.Day(end)) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

func newTestBacktestService(t *testing.T, cfg config.Backtest, earnings *fakeEarningsSource, prices *fakePriceSource) BacktestService {
	t.Helper()
	log := logger.NewNop()
	sizing, err := strategy.NewSizingStrategy(cfg)
	require.NoError(t, err)
	newRisk := func() *RiskManager {
		return NewRiskManager(cfg, log, sizing, nil)
	}
	return NewBacktestService(cfg, log, earnings, prices, newRisk, nil)
}

// stopLossFixture sets up one symbol that gaps up 5% on earnings, holds for a
// day, then breaks down through the stop.
func stopLossFixture() (config.Backtest, *fakeEarningsSource, *fakePriceSource, []model.PriceBar) {
	bars := flatBars("ALPHA", date("2023-10-02"), 70, 100)
	bars[46].Open = 105
	bars[46].High = 106
	bars[46].Close = 104
	bars[47].Close = 104
	bars[47].High = 105
	bars[47].Low = 103
	bars[48].Open = 98
	bars[48].Low = 90

	ev := model.EarningsEvent{
		Symbol:      "ALPHA",
		ReportDate:  bars[45].Date,
		Country:     "US",
		ActualEPS:   1.2,
		EstimateEPS: 1.0,
		Timing:      model.TimingAfterClose,
	}

	cfg := testConfig()
	cfg.StartDate = utils.FormatDate(bars[40].Date)
	cfg.EndDate = utils.FormatDate(bars[69].Date)

	return cfg,
		&fakeEarningsSource{events: []model.EarningsEvent{ev}},
		&fakePriceSource{bars: map[string][]model.PriceBar{"ALPHA": bars}},
		bars
}

func TestBacktestService_StopLossRun(t *testing.T) {
	cfg, earnings, prices, bars := stopLossFixture()
	svc := newTestBacktestService(t, cfg, earnings, prices)

	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, "ALPHA", trade.Symbol)
	assert.Equal(t, utils.Day(bars[46].Date), trade.EntryDate)
	assert.Equal(t, utils.Day(bars[48].Date), trade.ExitDate)
	assert.Equal(t, 105.0, trade.EntryPrice)
	// Open gapped through the stop level, so the fill is the open.
	assert.Equal(t, 98.0, trade.ExitPrice)
	assert.Equal(t, model.ExitStopLoss, trade.ExitReason)
	assert.Equal(t, 57, trade.Shares) // floor(6000 / 105)
	assert.Equal(t, -399.0, trade.Pnl)
	assert.Equal(t, 2, trade.HoldingDays)

	// 30 trading days inside the window, one equity point each.
	assert.Len(t, result.EquityCurve, 30)
	assert.Equal(t, 99601.0, result.Summary.FinalEquity)
	assert.Equal(t, 1, result.Summary.TotalTrades)
	assert.Equal(t, 1, result.Summary.LosingTrades)
	assert.False(t, result.Halted)

	// Exit dates never precede entry dates.
	for _, tr := range result.Trades {
		assert.False(t, tr.ExitDate.Before(tr.EntryDate))
	}
}

func TestBacktestService_EndOfBacktestForceClose(t *testing.T) {
	bars := flatBars("BRAVO", date("2023-10-02"), 70, 100)
	bars[67].Open = 105
	bars[67].High = 106

	ev := model.EarningsEvent{
		Symbol:      "BRAVO",
		ReportDate:  bars[66].Date,
		Country:     "US",
		ActualEPS:   1.2,
		EstimateEPS: 1.0,
		Timing:      model.TimingAfterClose,
	}

	cfg := testConfig()
	cfg.StartDate = utils.FormatDate(bars[40].Date)
	cfg.EndDate = utils.FormatDate(bars[69].Date)

	svc := newTestBacktestService(t, cfg,
		&fakeEarningsSource{events: []model.EarningsEvent{ev}},
		&fakePriceSource{bars: map[string][]model.PriceBar{"BRAVO": bars}},
	)

	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, model.ExitEndOfBacktest, trade.ExitReason)
	assert.Equal(t, utils.Day(bars[69].Date), trade.ExitDate)
	assert.Equal(t, 100.0, trade.ExitPrice)
	assert.False(t, trade.ExitDate.Before(trade.EntryDate))
}

func TestBacktestService_NoEntriesOnFinalDay(t *testing.T) {
	bars := flatBars("CHARLIE", date("2023-10-02"), 70, 100)
	bars[69].Open = 105
	bars[69].High = 106

	// Report resolves to a trade date on the final simulated day.
	ev := model.EarningsEvent{
		Symbol:      "CHARLIE",
		ReportDate:  bars[68].Date,
		Country:     "US",
		ActualEPS:   1.2,
		EstimateEPS: 1.0,
		Timing:      model.TimingAfterClose,
	}

	cfg := testConfig()
	cfg.StartDate = utils.FormatDate(bars[40].Date)
	cfg.EndDate = utils.FormatDate(bars[69].Date)

	svc := newTestBacktestService(t, cfg,
		&fakeEarningsSource{events: []model.EarningsEvent{ev}},
		&fakePriceSource{bars: map[string][]model.PriceBar{"CHARLIE": bars}},
	)

	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 100000.0, result.Summary.FinalEquity)
}

func TestBacktestService_MarginCapsConcurrentExposure(t *testing.T) {
	// Four identical candidates on the same trade date, each sized to 40% of
	// capital. With a 1.5x margin ratio only three fit.
	symbols := []string{"ALPHA", "BRAVO", "CHARLIE", "DELTA"}
	priceBars := make(map[string][]model.PriceBar, len(symbols))
	events := make([]model.EarningsEvent, 0, len(symbols))
	var window []model.PriceBar

	for _, symbol := range symbols {
		bars := flatBars(symbol, date("2023-10-02"), 70, 100)
		for i := 46; i < len(bars); i++ {
			bars[i].Open = 104
			bars[i].High = 106
			bars[i].Low = 103
			bars[i].Close = 104
		}
		bars[46].Open = 105
		priceBars[symbol] = bars
		events = append(events, model.EarningsEvent{
			Symbol:      symbol,
			ReportDate:  bars[45].Date,
			Country:     "US",
			ActualEPS:   1.2,
			EstimateEPS: 1.0,
			Timing:      model.TimingAfterClose,
		})
		window = bars
	}

	cfg := testConfig()
	cfg.PositionSizePct = 40
	cfg.StartDate = utils.FormatDate(window[40].Date)
	cfg.EndDate = utils.FormatDate(window[69].Date)

	svc := newTestBacktestService(t, cfg,
		&fakeEarningsSource{events: events},
		&fakePriceSource{bars: priceBars},
	)

	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
	require.NoError(t, err)

	// Admissions run in rank order; the fourth breaches the margin budget.
	require.Len(t, result.Trades, 3)
	var exposure float64
	for i, trade := range result.Trades {
		assert.Equal(t, symbols[i], trade.Symbol)
		assert.Equal(t, 380, trade.Shares) // floor(40000 / 105), same for every slot
		assert.Equal(t, model.ExitEndOfBacktest, trade.ExitReason)
		exposure += float64(trade.Shares) * 100 // marked at the prior close
	}
	marginBudget := cfg.InitialCapital * cfg.MarginRatio
	assert.LessOrEqual(t, exposure, marginBudget)
	assert.Greater(t, exposure+40000, marginBudget)

	assert.Equal(t, 98860.0, result.Summary.FinalEquity) // three trades at -380 each
}

func TestBacktestService_Deterministic(t *testing.T) {
	cfg, earnings, prices, _ := stopLossFixture()

	run := func() *dto.BacktestResult {
		svc := newTestBacktestService(t, cfg, earnings, prices)
		result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestBacktestService_WindowOverrides(t *testing.T) {
	cfg, earnings, prices, bars := stopLossFixture()
	svc := newTestBacktestService(t, cfg, earnings, prices)

	// Shrink the window past the earnings event; nothing trades.
	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{
		StartDate: utils.FormatDate(bars[50].Date),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)

	// An inverted override is rejected up front.
	_, err = svc.RunBacktest(context.Background(), dto.BacktestRequest{
		StartDate: "2024-06-01",
		EndDate:   "2024-01-01",
	})
	assert.Error(t, err)
}

func TestBacktestService_MissingPriceHistoryExcludesSymbol(t *testing.T) {
	cfg, earnings, _, _ := stopLossFixture()
	svc := newTestBacktestService(t, cfg, earnings, &fakePriceSource{bars: map[string][]model.PriceBar{}})

	result, err := svc.RunBacktest(context.Background(), dto.BacktestRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Empty(t, result.EquityCurve)
}
