package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"earnings-backtest/internal/delivery/http"
	"earnings-backtest/internal/repository"
	"earnings-backtest/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the backtest API server with scheduled data sync",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {

	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo := repository.NewRepository(appDep.cfg, appDep.cache, appDep.db.DB, appDep.log)

	services, err := service.NewService(appDep.cfg, appDep.log, repo)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services, repo.BacktestRunRepo)

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	scheduler := newSyncScheduler(appDep, services)
	scheduler.Start()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	scheduler.Stop()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}

func newSyncScheduler(appDep *AppDependency, services *service.Service) *cron.Cron {
	c := cron.New()
	spec := appDep.cfg.Scheduler.SyncSpec
	windowDays := appDep.cfg.Scheduler.SyncWindowDays

	_, err := c.AddFunc(spec, func() {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		start := now.AddDate(0, 0, -windowDays)
		end := now.AddDate(0, 0, windowDays)

		appDep.log.Info("Running scheduled data sync",
			zap.Time("start", start),
			zap.Time("end", end))

		if err := services.DataSyncService.Sync(context.Background(), start, end); err != nil {
			appDep.log.Error("Scheduled data sync failed", zap.Error(err))
		}
	})
	if err != nil {
		appDep.log.Fatal("Invalid sync cron spec", zap.String("spec", spec), zap.Error(err))
	}

	return c
}
