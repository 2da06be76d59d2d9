package repository

import (
	"earnings-backtest/config"
	"earnings-backtest/pkg/cache"
	"earnings-backtest/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	EarningsRepo    EarningsRepository
	PriceRepo       PriceRepository
	BacktestRunRepo BacktestRunRepository
	FMPRepo         FMPRepository
	YahooRepo       YahooFinanceRepository
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) *Repository {
	return &Repository{
		EarningsRepo:    NewEarningsRepository(db, log),
		PriceRepo:       NewPriceRepository(db, log),
		BacktestRunRepo: NewBacktestRunRepository(db, log),
		FMPRepo:         NewFMPRepository(cfg, log, inmemoryCache),
		YahooRepo:       NewYahooFinanceRepository(cfg, log),
	}
}
