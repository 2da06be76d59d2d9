package repository

import (
	"context"
	"fmt"
	"time"

	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceRepository stores and serves daily bars. Reads implement the
// simulation's PriceDataSource contract: ascending dates, no duplicates, and a
// typed DataUnavailable outcome when a symbol has no rows in the range.
type PriceRepository interface {
	GetPriceBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
	UpsertBars(ctx context.Context, bars []model.PriceBar) error
}

type priceRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPriceRepository(db *gorm.DB, log *logger.Logger) PriceRepository {
	return &priceRepository{db: db, log: log}
}

func (r *priceRepository) GetPriceBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	var bars []model.PriceBar
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, start, end).
		Order("date asc").
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("query price bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, &dto.DataUnavailableError{Symbol: symbol, Date: start, Field: "price_bars"}
	}
	return bars, nil
}

func (r *priceRepository) UpsertBars(ctx context.Context, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(bars, 1000).Error
	if err != nil {
		return fmt.Errorf("upsert price bars: %w", err)
	}
	return nil
}
