package service

import (
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/utils"
)

func testConfig() config.Backtest {
	return config.Backtest{
		StartDate:              "2024-01-02",
		EndDate:                "2024-03-29",
		InitialCapital:         100000,
		StopLossPct:            6,
		TrailStopMA:            21,
		MaxHoldingDays:         90,
		PositionSizePct:        6,
		MarginRatio:            1.5,
		RiskLimitPct:           6,
		MaxConcurrentPositions: 10,
		MinSurprisePct:         5,
		MaxGapPct:              25,
		MinPrice:               10,
		MinVolume:              200000,
		PreEarningsChangePct:   0,
		MaxCandidatesPerDay:    5,

		PartialProfitEnabled:    true,
		PartialProfitTriggerPct: 8,
		PartialProfitSellRatio:  0.5,

		SlippagePct:      0,
		EntryPriceSource: "open",
		SizingPattern:    "fixed",

		MinPositionSizePct: 5,
		MaxPositionSizePct: 25,
	}
}

// flatBars generates n daily bars on consecutive weekdays starting at start,
// all priced at the given close with a one-point range around it.
func flatBars(symbol string, start time.Time, n int, close float64) []model.PriceBar {
	bars := make([]model.PriceBar, 0, n)
	day := utils.Day(start)
	for len(bars) < n {
		for utils.IsWeekend(day) {
			day = day.AddDate(0, 0, 1)
		}
		bars = append(bars, model.PriceBar{
			Symbol: symbol,
			Date:   day,
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 300000,
		})
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

func date(s string) time.Time {
	d, err := utils.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
