package service

import (
	"context"

	"earnings-backtest/config"
	"earnings-backtest/internal/dto"
)

// BacktestRunRepository persists completed runs with their ledgers and the
// config snapshot that produced them.
type BacktestRunRepository interface {
	SaveRun(ctx context.Context, cfg config.Backtest, result *dto.BacktestResult) error
}
