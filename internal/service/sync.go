package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/repository"
	"earnings-backtest/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// DataSyncService pulls the earnings calendar and daily bars from the external
// providers into Postgres. Simulations only ever read the local store, so all
// provider I/O happens here, before any run starts.
type DataSyncService interface {
	Sync(ctx context.Context, start, end time.Time) error
}

type dataSyncService struct {
	cfg          *config.Config
	log          *logger.Logger
	fmpRepo      repository.FMPRepository
	yahooRepo    repository.YahooFinanceRepository
	earningsRepo repository.EarningsRepository
	priceRepo    repository.PriceRepository
}

func NewDataSyncService(
	cfg *config.Config,
	log *logger.Logger,
	fmpRepo repository.FMPRepository,
	yahooRepo repository.YahooFinanceRepository,
	earningsRepo repository.EarningsRepository,
	priceRepo repository.PriceRepository,
) DataSyncService {
	return &dataSyncService{
		cfg:          cfg,
		log:          log,
		fmpRepo:      fmpRepo,
		yahooRepo:    yahooRepo,
		earningsRepo: earningsRepo,
		priceRepo:    priceRepo,
	}
}

func (s *dataSyncService) Sync(ctx context.Context, start, end time.Time) error {
	events, err := s.fmpRepo.GetEarningsCalendar(ctx, start, end)
	if err != nil {
		return fmt.Errorf("sync earnings calendar: %w", err)
	}
	if err := s.earningsRepo.UpsertEvents(ctx, events); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "earnings calendar synced",
		logger.DateField("start", start),
		logger.DateField("end", end),
		logger.IntField("events", len(events)),
	)

	symbols := make(map[string]struct{})
	for _, ev := range events {
		if ev.Country == "US" {
			symbols[ev.Symbol] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(symbols))
	for sym := range symbols {
		ordered = append(ordered, sym)
	}
	sort.Strings(ordered)

	// Bars are loaded with the same leading history the simulation needs for
	// its lookback computations.
	barStart := start.AddDate(0, 0, -historyBufferDays)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Scheduler.MaxConcurrency)
	for _, sym := range ordered {
		symbol := sym
		group.Go(func() error {
			bars, err := s.yahooRepo.GetDailyBars(groupCtx, symbol, barStart, end)
			if err != nil {
				if dto.IsDataUnavailable(err) {
					s.log.WarnContext(groupCtx, "no provider data for symbol",
						logger.StringField("symbol", symbol), logger.ErrorField(err))
					return nil
				}
				return err
			}
			return s.priceRepo.UpsertBars(groupCtx, bars)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("sync price bars: %w", err)
	}

	s.log.InfoContext(ctx, "price bars synced", logger.IntField("symbols", len(ordered)))
	return nil
}
