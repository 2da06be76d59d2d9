package service

import (
	"fmt"

	"earnings-backtest/config"
	"earnings-backtest/internal/repository"
	"earnings-backtest/internal/strategy"
	"earnings-backtest/pkg/logger"
)

type Service struct {
	BacktestService BacktestService
	DataSyncService DataSyncService
}

func NewService(cfg *config.Config, log *logger.Logger, repo *repository.Repository) (*Service, error) {
	if err := cfg.Backtest.Validate(); err != nil {
		return nil, err
	}

	var breadth strategy.BreadthSource
	if cfg.Backtest.BreadthCSV != "" {
		source, err := strategy.LoadBreadthCSV(cfg.Backtest.BreadthCSV)
		if err != nil {
			return nil, fmt.Errorf("load market breadth data: %w", err)
		}
		dates := source.Dates()
		log.Info("market breadth data loaded",
			logger.IntField("observations", len(dates)),
			logger.DateField("first", dates[0]),
			logger.DateField("last", dates[len(dates)-1]),
		)
		breadth = source
	}

	// Each run owns a fresh RiskManager: the circuit breaker and the sizing
	// state must never leak between runs.
	newRisk := func() *RiskManager {
		sizing, err := strategy.NewSizingStrategy(cfg.Backtest)
		if err != nil {
			// Unreachable after Validate; the pattern set is closed.
			panic(err)
		}
		return NewRiskManager(cfg.Backtest, log, sizing, breadth)
	}

	backtestService := NewBacktestService(
		cfg.Backtest,
		log,
		repo.EarningsRepo,
		repo.PriceRepo,
		newRisk,
		repo.BacktestRunRepo,
	)
	dataSyncService := NewDataSyncService(cfg, log, repo.FMPRepo, repo.YahooRepo, repo.EarningsRepo, repo.PriceRepo)

	return &Service{
		BacktestService: backtestService,
		DataSyncService: dataSyncService,
	}, nil
}
