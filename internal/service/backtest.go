package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"
	"earnings-backtest/pkg/utils"
)

// EarningsDataSource supplies earnings events for a date range, ordered by
// report date.
type EarningsDataSource interface {
	GetEarningsEvents(ctx context.Context, start, end time.Time) ([]model.EarningsEvent, error)
}

// PriceDataSource supplies one symbol's daily bars for a date range, ascending
// by date with no duplicates. Missing data is a typed DataUnavailable outcome,
// never an uncontrolled failure.
type PriceDataSource interface {
	GetPriceBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
}

// historyBufferDays of extra calendar history is loaded before the window so
// the 20-bar filters and the trailing average have a full lookback on day one.
const historyBufferDays = 120

// BacktestService drives the day-by-day simulation: exits first, then
// candidate admission, then the mark to market.
type BacktestService interface {
	RunBacktest(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error)
}

type backtestService struct {
	cfg      config.Backtest
	log      *logger.Logger
	earnings EarningsDataSource
	prices   PriceDataSource
	filter   *CandidateFilter
	newRisk  func() *RiskManager
	runRepo  BacktestRunRepository
}

// NewBacktestService builds the orchestrator. newRisk is a factory because
// every run must own an independent RiskManager (it carries sizing state).
// runRepo may be nil to skip persistence.
func NewBacktestService(
	cfg config.Backtest,
	log *logger.Logger,
	earnings EarningsDataSource,
	prices PriceDataSource,
	newRisk func() *RiskManager,
	runRepo BacktestRunRepository,
) BacktestService {
	return &backtestService{
		cfg:      cfg,
		log:      log,
		earnings: earnings,
		prices:   prices,
		filter:   NewCandidateFilter(cfg, log),
		newRisk:  newRisk,
		runRepo:  runRepo,
	}
}

func (s *backtestService) window(req dto.BacktestRequest) (time.Time, time.Time, error) {
	cfg := s.cfg
	if req.StartDate != "" {
		cfg.StartDate = req.StartDate
	}
	if req.EndDate != "" {
		cfg.EndDate = req.EndDate
	}
	if err := cfg.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return cfg.Window()
}

// RunBacktest executes one full simulation over the requested window. The run
// is strictly sequential over the sorted trading calendar and fully owns its
// Portfolio and RiskState, so concurrent runs never interfere.
func (s *backtestService) RunBacktest(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error) {
	start, end, err := s.window(req)
	if err != nil {
		return nil, err
	}

	events, err := s.earnings.GetEarningsEvents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load earnings events: %w", err)
	}

	book, err := s.loadPrices(ctx, events, start, end)
	if err != nil {
		return nil, err
	}

	candidates := s.filter.BuildCandidates(ctx, events, book)
	calendar := book.tradingCalendar(start, end)

	s.log.InfoContext(ctx, "starting simulation",
		logger.DateField("start", start),
		logger.DateField("end", end),
		logger.IntField("trading_days", len(calendar)),
		logger.FloatField("initial_capital", s.cfg.InitialCapital),
	)

	executor := NewTradeExecutor(s.cfg, s.log)
	risk := s.newRisk()
	pf := model.NewPortfolio(s.cfg.InitialCapital)
	rs := &model.RiskState{}
	var ledger []dto.TradeRecord

	for dayIdx, day := range calendar {
		finalDay := dayIdx == len(calendar)-1

		// 1. Step open positions. Exits settle before admissions so freed
		// margin and slots are available the same day.
		ledger = s.stepPositions(ctx, executor, risk, pf, rs, book, day, ledger)

		// 2+3. Admit today's ranked candidates. The final day takes no new
		// entries; they would be force-closed the same day.
		if !finalDay {
			s.admitCandidates(ctx, executor, risk, pf, rs, book, candidates[day], day)
		}

		// 4. On the final day everything still open is force-closed before
		// the last equity point.
		if finalDay {
			ledger = s.forceCloseAll(ctx, executor, risk, pf, rs, book, day, ledger)
		}

		pf.EquityCurve = append(pf.EquityCurve, model.EquityPoint{
			Date:   day,
			Equity: utils.Round2(s.markToMarket(pf, book, day)),
		})
	}

	result := &dto.BacktestResult{
		StartDate:   start,
		EndDate:     end,
		Trades:      ledger,
		EquityCurve: pf.EquityCurve,
		Summary:     calcSummary(ledger, pf),
		Halted:      rs.TradingHalted,
	}
	if rs.TradingHalted {
		result.HaltedDate = utils.ToPointer(rs.HaltTriggeredDate)
	}

	s.log.InfoContext(ctx, "simulation completed",
		logger.IntField("total_trades", result.Summary.TotalTrades),
		logger.FloatField("final_equity", result.Summary.FinalEquity),
	)

	if s.runRepo != nil {
		if err := s.runRepo.SaveRun(ctx, s.cfg, result); err != nil {
			s.log.ErrorContext(ctx, "failed to persist backtest run", logger.ErrorField(err))
		}
	}

	return result, nil
}

// loadPrices fetches bars for every symbol surviving the fundamental filter,
// with enough leading history for the lookback computations.
func (s *backtestService) loadPrices(ctx context.Context, events []model.EarningsEvent, start, end time.Time) (*priceBook, error) {
	symbols := make(map[string]struct{})
	for _, res := range s.filter.fundamentalFilter(ctx, events) {
		symbols[res.event.Symbol] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for sym := range symbols {
		ordered = append(ordered, sym)
	}
	sort.Strings(ordered)

	book := newPriceBook()
	loadStart := start.AddDate(0, 0, -historyBufferDays)
	for _, sym := range ordered {
		bars, err := s.prices.GetPriceBars(ctx, sym, loadStart, end)
		if err != nil {
			if dto.IsDataUnavailable(err) {
				s.log.WarnContext(ctx, "no price history, symbol excluded",
					logger.StringField("symbol", sym), logger.ErrorField(err))
				continue
			}
			return nil, fmt.Errorf("load price bars for %s: %w", sym, err)
		}
		if len(bars) == 0 {
			s.log.WarnContext(ctx, "no price history, symbol excluded", logger.StringField("symbol", sym))
			continue
		}
		book.add(sym, bars)
	}
	return book, nil
}

func (s *backtestService) stepPositions(
	ctx context.Context,
	executor *TradeExecutor,
	risk *RiskManager,
	pf *model.Portfolio,
	rs *model.RiskState,
	book *priceBook,
	day time.Time,
	ledger []dto.TradeRecord,
) []dto.TradeRecord {
	for _, pos := range pf.OpenPositions() {
		series, ok := book.get(pos.Symbol)
		if !ok {
			continue
		}
		records, err := executor.Step(ctx, pos, series, day)
		if err != nil {
			s.log.DebugContext(ctx, "position step skipped",
				logger.StringField("symbol", pos.Symbol),
				logger.DateField("date", day),
				logger.ErrorField(err),
			)
			continue
		}
		ledger = s.settle(ctx, risk, pf, rs, pos, records, ledger)
	}
	return ledger
}

func (s *backtestService) forceCloseAll(
	ctx context.Context,
	executor *TradeExecutor,
	risk *RiskManager,
	pf *model.Portfolio,
	rs *model.RiskState,
	book *priceBook,
	day time.Time,
	ledger []dto.TradeRecord,
) []dto.TradeRecord {
	for _, pos := range pf.OpenPositions() {
		series, ok := book.get(pos.Symbol)
		if !ok {
			continue
		}
		record, err := executor.ForceClose(pos, series, day)
		if err != nil {
			s.log.WarnContext(ctx, "force close failed",
				logger.StringField("symbol", pos.Symbol),
				logger.DateField("date", day),
				logger.ErrorField(err),
			)
			continue
		}
		ledger = s.settle(ctx, risk, pf, rs, pos, []dto.TradeRecord{record}, ledger)
	}
	return ledger
}

// settle books each fill's realized pnl into account capital, feeds the
// circuit breaker, and retires closed positions from the portfolio.
func (s *backtestService) settle(
	ctx context.Context,
	risk *RiskManager,
	pf *model.Portfolio,
	rs *model.RiskState,
	pos *model.Position,
	records []dto.TradeRecord,
	ledger []dto.TradeRecord,
) []dto.TradeRecord {
	for _, rec := range records {
		pf.Capital += rec.Pnl
		risk.RecordRealized(ctx, rs, pf.InitialCapital, rec.Pnl, rec.ExitDate)
		ledger = append(ledger, rec)
	}
	if pos.Status == model.StatusClosed {
		pf.Remove(pos)
	}
	return ledger
}

func (s *backtestService) admitCandidates(
	ctx context.Context,
	executor *TradeExecutor,
	risk *RiskManager,
	pf *model.Portfolio,
	rs *model.RiskState,
	book *priceBook,
	batch []dto.Candidate,
	day time.Time,
) {
	for _, cand := range batch {
		positionValue := risk.PositionValue(ctx, pf, day)
		admitted, reason := risk.CanAdmit(pf, rs, positionValue, s.openMarketValue(pf, book, day))
		if !admitted {
			s.log.InfoContext(ctx, "candidate rejected",
				logger.StringField("symbol", cand.Symbol),
				logger.DateField("date", day),
				logger.StringField("reason", reason),
			)
			continue
		}

		pos := executor.OpenPosition(cand, positionValue)
		if pos == nil {
			s.log.DebugContext(ctx, "candidate sized to zero shares, skipped",
				logger.StringField("symbol", cand.Symbol),
				logger.DateField("date", day),
			)
			continue
		}

		pf.Add(pos)
		s.log.DebugContext(ctx, "position opened",
			logger.StringField("symbol", pos.Symbol),
			logger.DateField("date", day),
			logger.IntField("shares", pos.SharesOpened),
			logger.FloatField("entry_price", pos.EntryPrice),
		)
	}
}

// openMarketValue totals shares times the latest available mark over the open
// positions. At admission time that mark is the most recent close strictly
// before the current day; the entry price stands in for positions admitted
// earlier the same day without one.
func (s *backtestService) openMarketValue(pf *model.Portfolio, book *priceBook, day time.Time) float64 {
	var total float64
	for _, pos := range pf.OpenPositions() {
		mark := pos.EntryPrice
		if series, ok := book.get(pos.Symbol); ok {
			if c, markOK := series.closeBefore(day); markOK {
				mark = c
			}
		}
		total += float64(pos.SharesRemaining) * mark
	}
	return total
}

// markToMarket values the portfolio at the day's close: account capital plus
// unrealized pnl on the open positions.
func (s *backtestService) markToMarket(pf *model.Portfolio, book *priceBook, day time.Time) float64 {
	equity := pf.Capital
	for _, pos := range pf.OpenPositions() {
		mark := pos.EntryPrice
		if series, ok := book.get(pos.Symbol); ok {
			if c, markOK := series.closeAtOrBefore(day); markOK {
				mark = c
			}
		}
		equity += float64(pos.SharesRemaining) * (mark - pos.EntryPrice)
	}
	return equity
}
