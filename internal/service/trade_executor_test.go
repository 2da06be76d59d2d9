package service

import (
	"context"
	"testing"

	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeExecutor_OpenPosition(t *testing.T) {
	cfg := testConfig()
	cfg.SlippagePct = 0.3
	executor := NewTradeExecutor(cfg, logger.NewNop())

	cand := dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  date("2024-01-08"),
		EntryPrice: 100,
	}

	pos := executor.OpenPosition(cand, 10000)
	require.NotNil(t, pos)
	assert.InDelta(t, 100.3, pos.EntryPrice, 1e-9)
	assert.Equal(t, 99, pos.SharesOpened) // floor(10000 / 100.3)
	assert.Equal(t, 99, pos.SharesRemaining)
	assert.Equal(t, model.StatusOpen, pos.Status)

	// Sizing that floors to zero shares never creates a position.
	assert.Nil(t, executor.OpenPosition(cand, 50))
}

func TestTradeExecutor_StopLoss(t *testing.T) {
	tests := []struct {
		name          string
		open          float64
		low           float64
		wantExitPrice float64
	}{
		{
			name:          "intraday touch fills at stop price",
			open:          98,
			low:           93,
			wantExitPrice: 94,
		},
		{
			name:          "gap below stop fills at open",
			open:          90,
			low:           88,
			wantExitPrice: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			executor := NewTradeExecutor(cfg, logger.NewNop())

			bars := flatBars("ALPHA", date("2024-01-01"), 5, 100)
			bars[2].Open = tt.open
			bars[2].Low = tt.low
			series := newPriceSeries("ALPHA", bars)

			pos := executor.OpenPosition(dto.Candidate{
				Symbol:     "ALPHA",
				TradeDate:  bars[1].Date,
				EntryPrice: 100,
			}, 10000)
			require.NotNil(t, pos)

			records, err := executor.Step(context.Background(), pos, series, bars[2].Date)
			require.NoError(t, err)
			require.Len(t, records, 1)

			rec := records[0]
			assert.Equal(t, model.ExitStopLoss, rec.ExitReason)
			assert.Equal(t, tt.wantExitPrice, rec.ExitPrice)
			assert.Equal(t, 100, rec.Shares)
			assert.Equal(t, 1, rec.HoldingDays)
			assert.Equal(t, model.StatusClosed, pos.Status)
			assert.Equal(t, 0, pos.SharesRemaining)
		})
	}
}

func TestTradeExecutor_PartialProfit(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 5, 100)
	bars[2].Close = 109
	bars[2].High = 110
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[1].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	records, err := executor.Step(context.Background(), pos, series, bars[2].Date)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, model.ExitPartialProfit, rec.ExitReason)
	assert.Equal(t, 109.0, rec.ExitPrice)
	assert.Equal(t, 50, rec.Shares)
	assert.Equal(t, 450.0, rec.Pnl)
	assert.Equal(t, model.StatusPartiallyClosed, pos.Status)
	assert.Equal(t, 50, pos.SharesRemaining)
	assert.True(t, pos.PartialProfitTaken)
}

func TestTradeExecutor_PartialProfitOnlyFirstDayAfterEntry(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 6, 100)
	// Trigger level reached two days after entry, not one.
	bars[3].Close = 109
	bars[3].High = 110
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[1].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	records, err := executor.Step(context.Background(), pos, series, bars[2].Date)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = executor.Step(context.Background(), pos, series, bars[3].Date)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, pos.PartialProfitTaken)
	assert.Equal(t, 100, pos.SharesRemaining)
}

func TestTradeExecutor_TrailingStopFillsAtNextOpen(t *testing.T) {
	cfg := testConfig()
	cfg.TrailStopMA = 3
	cfg.StopLossPct = 50 // keep the fixed stop out of the way
	cfg.PartialProfitEnabled = false
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 6, 100)
	bars[3].Close = 90
	bars[3].Low = 89
	bars[4].Open = 95
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[1].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	// Close below the trailing average schedules the exit but sells nothing.
	records, err := executor.Step(context.Background(), pos, series, bars[3].Date)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, pos.TrailingExitPending)
	assert.Equal(t, model.StatusOpen, pos.Status)

	// The fill happens at the next trading day's open.
	records, err = executor.Step(context.Background(), pos, series, bars[4].Date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.ExitTrailingStop, records[0].ExitReason)
	assert.Equal(t, 95.0, records[0].ExitPrice)
	assert.Equal(t, 3, records[0].HoldingDays)
	assert.Equal(t, model.StatusClosed, pos.Status)
}

func TestTradeExecutor_PendingTrailingExitBeatsStopLoss(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 4, 100)
	bars[2].Open = 97
	bars[2].Low = 90 // would also trip the stop
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[1].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)
	pos.TrailingExitPending = true

	records, err := executor.Step(context.Background(), pos, series, bars[2].Date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.ExitTrailingStop, records[0].ExitReason)
	assert.Equal(t, 97.0, records[0].ExitPrice)
}

func TestTradeExecutor_MaxHoldingPeriod(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingDays = 2
	cfg.PartialProfitEnabled = false
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 5, 100)
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[0].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	records, err := executor.Step(context.Background(), pos, series, bars[1].Date)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = executor.Step(context.Background(), pos, series, bars[2].Date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.ExitMaxHolding, records[0].ExitReason)
	assert.Equal(t, 100.0, records[0].ExitPrice)
	assert.Equal(t, 2, records[0].HoldingDays)
}

func TestTradeExecutor_StepMissingBar(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 3, 100)
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[0].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	_, err := executor.Step(context.Background(), pos, series, date("2024-06-03"))
	require.Error(t, err)
	assert.True(t, dto.IsDataUnavailable(err))
	assert.Equal(t, model.StatusOpen, pos.Status)
}

func TestTradeExecutor_ForceClose(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	bars := flatBars("ALPHA", date("2024-01-01"), 4, 100)
	bars[3].Close = 103
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[1].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	rec, err := executor.ForceClose(pos, series, bars[3].Date)
	require.NoError(t, err)
	assert.Equal(t, model.ExitEndOfBacktest, rec.ExitReason)
	assert.Equal(t, 103.0, rec.ExitPrice)
	assert.Equal(t, 2, rec.HoldingDays)
	assert.Equal(t, model.StatusClosed, pos.Status)
	assert.True(t, rec.ExitDate.After(rec.EntryDate))
}

func TestTradeExecutor_ForceCloseNeedsLaterBar(t *testing.T) {
	cfg := testConfig()
	executor := NewTradeExecutor(cfg, logger.NewNop())

	// The symbol stops trading right after entry, so the only available mark
	// is the entry bar itself. The position stays open rather than closing on
	// its own entry date.
	bars := flatBars("ALPHA", date("2024-01-01"), 3, 100)
	series := newPriceSeries("ALPHA", bars)

	pos := executor.OpenPosition(dto.Candidate{
		Symbol:     "ALPHA",
		TradeDate:  bars[2].Date,
		EntryPrice: 100,
	}, 10000)
	require.NotNil(t, pos)

	_, err := executor.ForceClose(pos, series, date("2024-06-03"))
	require.Error(t, err)
	assert.True(t, dto.IsDataUnavailable(err))
	assert.Equal(t, model.StatusOpen, pos.Status)
	assert.Equal(t, 100, pos.SharesRemaining)
}
