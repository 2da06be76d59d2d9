package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/cache"
	"earnings-backtest/pkg/httpclient"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"

	"golang.org/x/time/rate"
)

// FMPRepository fetches the earnings calendar from Financial Modeling Prep.
type FMPRepository interface {
	GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]model.EarningsEvent, error)
}

type fmpEarningsRow struct {
	Date         string   `json:"date"`
	Symbol       string   `json:"symbol"`
	EPS          *float64 `json:"eps"`
	EPSEstimated *float64 `json:"epsEstimated"`
	Time         string   `json:"time"`
}

type fmpRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            *config.Config
	log            *logger.Logger
	cache          cache.Cache
	requestLimiter *rate.Limiter
}

func NewFMPRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache) FMPRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.FMP.MaxRequestPerMinute)
	return &fmpRepository{
		httpClient:     httpclient.New(cfg.FMP.BaseURL, cfg.FMP.Timeout, ""),
		cfg:            cfg,
		log:            log,
		cache:          inmemoryCache,
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

func (r *fmpRepository) GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]model.EarningsEvent, error) {
	cacheKey := fmt.Sprintf("fmp:earnings:%s:%s", utils.FormatDate(start), utils.FormatDate(end))
	if cached, found := cache.GetTyped[[]model.EarningsEvent](r.cache, cacheKey); found {
		return cached, nil
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var rows []fmpEarningsRow
	queryParams := map[string]string{
		"from":   utils.FormatDate(start),
		"to":     utils.FormatDate(end),
		"apikey": r.cfg.FMP.APIKey,
	}
	resp, err := r.httpClient.Get(ctx, "/earning_calendar", queryParams, nil, &rows)
	if err != nil {
		return nil, fmt.Errorf("fetch FMP earnings calendar: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch FMP earnings calendar: unexpected status %d", resp.StatusCode)
	}

	events := make([]model.EarningsEvent, 0, len(rows))
	for _, row := range rows {
		// Rows without a reported or estimated EPS are upcoming events, not
		// history; they cannot feed the surprise computation.
		if row.EPS == nil || row.EPSEstimated == nil {
			continue
		}
		reportDate, err := utils.ParseDate(row.Date)
		if err != nil {
			r.log.WarnContext(ctx, "skipping earnings row with malformed date",
				logger.StringField("symbol", row.Symbol),
				logger.StringField("date", row.Date),
			)
			continue
		}
		events = append(events, model.EarningsEvent{
			Symbol:      row.Symbol,
			ReportDate:  reportDate,
			Country:     countryFromSymbol(row.Symbol),
			ActualEPS:   *row.EPS,
			EstimateEPS: *row.EPSEstimated,
			Timing:      timingFromFMP(row.Time),
		})
	}

	r.cache.Set(cacheKey, events, r.cfg.Cache.DefaultExpiration)
	return events, nil
}

// countryFromSymbol classifies by the exchange suffix. FMP uses plain symbols
// for US listings and dot suffixes elsewhere (e.g. SAP.DE, 7203.T).
func countryFromSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return "non-US"
	}
	return "US"
}

// timingFromFMP maps the calendar's session codes: bmo is before market open,
// amc is after market close. Anything else stays unknown and resolves to the
// conservative later trade date.
func timingFromFMP(t string) model.MarketTiming {
	switch strings.ToLower(t) {
	case "bmo":
		return model.TimingBeforeOpen
	case "amc":
		return model.TimingAfterClose
	default:
		return model.TimingUnknown
	}
}
