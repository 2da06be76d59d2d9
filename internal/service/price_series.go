package service

import (
	"math"
	"sort"
	"time"

	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/utils"
)

// priceSeries is one symbol's daily bars indexed by date. Bars are ascending
// with no duplicate dates, per the PriceDataSource contract.
type priceSeries struct {
	symbol string
	bars   []model.PriceBar
	byDate map[time.Time]int
}

func newPriceSeries(symbol string, bars []model.PriceBar) *priceSeries {
	s := &priceSeries{
		symbol: symbol,
		bars:   bars,
		byDate: make(map[time.Time]int, len(bars)),
	}
	for i, b := range bars {
		s.byDate[utils.Day(b.Date)] = i
	}
	return s
}

// indexOf returns the bar index for an exact trading date.
func (s *priceSeries) indexOf(date time.Time) (int, bool) {
	i, ok := s.byDate[utils.Day(date)]
	return i, ok
}

// barOn returns the bar for an exact trading date.
func (s *priceSeries) barOn(date time.Time) (model.PriceBar, bool) {
	i, ok := s.indexOf(date)
	if !ok {
		return model.PriceBar{}, false
	}
	return s.bars[i], true
}

// indexAtOrBefore returns the index of the last bar dated at or before date.
func (s *priceSeries) indexAtOrBefore(date time.Time) (int, bool) {
	d := utils.Day(date)
	i := sort.Search(len(s.bars), func(i int) bool {
		return utils.Day(s.bars[i].Date).After(d)
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// nextTradingDay returns the first bar strictly after date. This skips
// weekends, holidays and symbol-specific halts, since only traded days
// appear in the series.
func (s *priceSeries) nextTradingDay(date time.Time) (model.PriceBar, bool) {
	d := utils.Day(date)
	i := sort.Search(len(s.bars), func(i int) bool {
		return utils.Day(s.bars[i].Date).After(d)
	})
	if i >= len(s.bars) {
		return model.PriceBar{}, false
	}
	return s.bars[i], true
}

// closeAtOrBefore returns the most recent close available at or before date.
func (s *priceSeries) closeAtOrBefore(date time.Time) (float64, bool) {
	i, ok := s.indexAtOrBefore(date)
	if !ok {
		return 0, false
	}
	return s.bars[i].Close, true
}

// closeBefore returns the most recent close strictly before date. This is the
// mark used for margin checks at the open, when the current day's close is
// not yet known.
func (s *priceSeries) closeBefore(date time.Time) (float64, bool) {
	i, ok := s.indexAtOrBefore(date)
	if !ok {
		return 0, false
	}
	if utils.SameDay(s.bars[i].Date, date) {
		if i == 0 {
			return 0, false
		}
		i--
	}
	return s.bars[i].Close, true
}

// avgVolume returns the mean volume over the n bars ending at index end
// (inclusive). Returns a DataUnavailableError when history is insufficient.
func (s *priceSeries) avgVolume(end, n int) (float64, error) {
	if n <= 0 || end < n-1 || end >= len(s.bars) {
		date := time.Time{}
		if end >= 0 && end < len(s.bars) {
			date = s.bars[end].Date
		}
		return 0, &dto.DataUnavailableError{Symbol: s.symbol, Date: date, Field: "avg_volume_20d"}
	}
	var sum float64
	for i := end - n + 1; i <= end; i++ {
		sum += float64(s.bars[i].Volume)
	}
	return sum / float64(n), nil
}

// changePct returns the percent change between the closes at the two indexes.
func (s *priceSeries) changePct(from, to int) (float64, error) {
	if from < 0 || to < 0 || from >= len(s.bars) || to >= len(s.bars) {
		return 0, &dto.DataUnavailableError{Symbol: s.symbol, Field: "close"}
	}
	base := s.bars[from].Close
	if base == 0 || math.IsNaN(base) || math.IsNaN(s.bars[to].Close) {
		return 0, &dto.ArithmeticDegenerateError{Symbol: s.symbol, Date: s.bars[from].Date, Field: "close"}
	}
	return (s.bars[to].Close - base) / base * 100, nil
}

// priceBook holds every loaded series for a run.
type priceBook struct {
	series map[string]*priceSeries
}

func newPriceBook() *priceBook {
	return &priceBook{series: make(map[string]*priceSeries)}
}

func (b *priceBook) add(symbol string, bars []model.PriceBar) {
	b.series[symbol] = newPriceSeries(symbol, bars)
}

func (b *priceBook) get(symbol string) (*priceSeries, bool) {
	s, ok := b.series[symbol]
	return s, ok
}

// tradingCalendar returns the sorted union of bar dates inside the window.
// A calendar day counts as a trading day when any loaded symbol traded.
func (b *priceBook) tradingCalendar(start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, s := range b.series {
		for _, bar := range s.bars {
			d := utils.Day(bar.Date)
			if d.Before(utils.Day(start)) || d.After(utils.Day(end)) {
				continue
			}
			seen[d] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
