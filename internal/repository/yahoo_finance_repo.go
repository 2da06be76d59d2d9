package repository

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/httpclient"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"

	"golang.org/x/time/rate"
)

// YahooFinanceRepository fetches daily bars from the Yahoo Finance chart API.
type YahooFinanceRepository interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

type yahooFinanceRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            *config.Config
	log            *logger.Logger
	requestLimiter *rate.Limiter
}

func NewYahooFinanceRepository(cfg *config.Config, log *logger.Logger) YahooFinanceRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.Yahoo.MaxRequestPerMinute)
	return &yahooFinanceRepository{
		httpClient:     httpclient.New(cfg.Yahoo.BaseURL, cfg.Yahoo.Timeout, ""),
		cfg:            cfg,
		log:            log,
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

func (r *yahooFinanceRepository) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var result yahooChartResponse
	queryParams := map[string]string{
		"period1":        fmt.Sprintf("%d", start.Unix()),
		"period2":        fmt.Sprintf("%d", end.AddDate(0, 0, 1).Unix()),
		"interval":       "1d",
		"includePrePost": "false",
		"events":         "div,split",
	}
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
	}

	resp, err := r.httpClient.Get(ctx, "/"+symbol, queryParams, headers, &result)
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars for %s: %w", symbol, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &dto.DataUnavailableError{Symbol: symbol, Date: start, Field: "price_bars"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch daily bars for %s: unexpected status %d", symbol, resp.StatusCode)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &dto.DataUnavailableError{Symbol: symbol, Date: start, Field: "price_bars"}
	}

	chart := result.Chart.Result[0]
	quote := chart.Indicators.Quote[0]
	bars := make([]model.PriceBar, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		// Null quote entries decode to NaN/zero; a bar with no close is a
		// non-trading placeholder and is dropped here, not zero-filled.
		if quote.Close[i] == 0 || math.IsNaN(quote.Close[i]) {
			continue
		}
		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}
		bars = append(bars, model.PriceBar{
			Symbol: symbol,
			Date:   utils.Day(time.Unix(ts, 0).UTC()),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: volume,
		})
	}

	if len(bars) == 0 {
		return nil, &dto.DataUnavailableError{Symbol: symbol, Date: start, Field: "price_bars"}
	}
	return bars, nil
}
