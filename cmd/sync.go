package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"earnings-backtest/internal/repository"
	"earnings-backtest/internal/service"
	"earnings-backtest/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	syncStartDate string
	syncEndDate   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch earnings calendar and price history into the database",
	Run:   RunSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncStartDate, "start", "", "Sync range start date (YYYY-MM-DD), defaults to backtest start_date")
	syncCmd.Flags().StringVar(&syncEndDate, "end", "", "Sync range end date (YYYY-MM-DD), defaults to backtest end_date")
}

func RunSync(cmd *cobra.Command, args []string) {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer func() {
		if err := appDep.Close(); err != nil {
			log.Fatalf("Failed to close app dependency: %v", err)
		}
	}()

	repo := repository.NewRepository(appDep.cfg, appDep.cache, appDep.db.DB, appDep.log)

	services, err := service.NewService(appDep.cfg, appDep.log, repo)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	start, end, err := appDep.cfg.Backtest.Window()
	if err != nil {
		log.Fatalf("Invalid backtest window: %v", err)
	}
	if syncStartDate != "" {
		if start, err = utils.ParseDate(syncStartDate); err != nil {
			log.Fatalf("Invalid --start date: %v", err)
		}
	}
	if syncEndDate != "" {
		if end, err = utils.ParseDate(syncEndDate); err != nil {
			log.Fatalf("Invalid --end date: %v", err)
		}
	}

	if err := services.DataSyncService.Sync(ctx, start, end); err != nil {
		log.Fatalf("Data sync failed: %v", err)
	}
}
