package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/model"
	"earnings-backtest/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BacktestRunRepository persists completed runs. The parameter snapshot is
// stored as JSON so old runs stay interpretable after defaults change.
type BacktestRunRepository interface {
	SaveRun(ctx context.Context, cfg config.Backtest, result *dto.BacktestResult) error
	GetRun(ctx context.Context, id uint) (*model.BacktestRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.BacktestRun, error)
}

type backtestRunRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBacktestRunRepository(db *gorm.DB, log *logger.Logger) BacktestRunRepository {
	return &backtestRunRepository{db: db, log: log}
}

func (r *backtestRunRepository) SaveRun(ctx context.Context, cfg config.Backtest, result *dto.BacktestResult) error {
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}

	run := model.BacktestRun{
		StartDate:      result.StartDate,
		EndDate:        result.EndDate,
		InitialCapital: result.Summary.InitialCapital,
		FinalEquity:    result.Summary.FinalEquity,
		TotalTrades:    result.Summary.TotalTrades,
		Config:         datatypes.JSON(snapshot),
	}
	for _, trade := range result.Trades {
		run.Trades = append(run.Trades, model.BacktestTrade{
			Symbol:      trade.Symbol,
			EntryDate:   trade.EntryDate,
			ExitDate:    trade.ExitDate,
			EntryPrice:  trade.EntryPrice,
			ExitPrice:   trade.ExitPrice,
			Shares:      trade.Shares,
			Pnl:         trade.Pnl,
			PnlPct:      trade.PnlPct,
			ExitReason:  string(trade.ExitReason),
			HoldingDays: trade.HoldingDays,
			Sector:      trade.Sector,
		})
	}

	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("save backtest run: %w", err)
	}
	r.log.InfoContext(ctx, "backtest run persisted",
		logger.IntField("run_id", int(run.ID)),
		logger.IntField("trades", len(run.Trades)),
	)
	return nil
}

func (r *backtestRunRepository) GetRun(ctx context.Context, id uint) (*model.BacktestRun, error) {
	var run model.BacktestRun
	err := r.db.WithContext(ctx).Preload("Trades").First(&run, id).Error
	if err != nil {
		return nil, fmt.Errorf("get backtest run %d: %w", id, err)
	}
	return &run, nil
}

func (r *backtestRunRepository) ListRuns(ctx context.Context, limit int) ([]model.BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.BacktestRun
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	return runs, nil
}
