package repository

import (
	"context"
	"fmt"
	"time"

	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EarningsRepository stores and serves earnings events. Reads implement the
// simulation's EarningsDataSource contract.
type EarningsRepository interface {
	GetEarningsEvents(ctx context.Context, start, end time.Time) ([]model.EarningsEvent, error)
	UpsertEvents(ctx context.Context, events []model.EarningsEvent) error
}

type earningsRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEarningsRepository(db *gorm.DB, log *logger.Logger) EarningsRepository {
	return &earningsRepository{db: db, log: log}
}

func (r *earningsRepository) GetEarningsEvents(ctx context.Context, start, end time.Time) ([]model.EarningsEvent, error) {
	var events []model.EarningsEvent
	err := r.db.WithContext(ctx).
		Where("report_date >= ? AND report_date <= ?", start, end).
		Order("report_date asc, symbol asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("query earnings events: %w", err)
	}
	return events, nil
}

func (r *earningsRepository) UpsertEvents(ctx context.Context, events []model.EarningsEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "report_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"actual_eps", "estimate_eps", "timing", "sector"}),
		}).
		CreateInBatches(events, 500).Error
	if err != nil {
		return fmt.Errorf("upsert earnings events: %w", err)
	}
	return nil
}
