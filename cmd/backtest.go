package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"earnings-backtest/internal/dto"
	"earnings-backtest/internal/repository"
	"earnings-backtest/internal/service"
	"earnings-backtest/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	backtestStartDate string
	backtestEndDate   string
	backtestOutput    string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest over the configured date range and print the report",
	Run:   RunBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestStartDate, "start", "", "Override backtest start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestEndDate, "end", "", "Override backtest end date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestOutput, "output", "", "Write the full result as JSON to this file")
}

func RunBacktest(cmd *cobra.Command, args []string) {

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

	req := dto.BacktestRequest{
		StartDate: backtestStartDate,
		EndDate:   backtestEndDate,
	}

	result, err := services.BacktestService.RunBacktest(ctx, req)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	printReport(result)

	if backtestOutput != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		if err := os.WriteFile(backtestOutput, data, 0o644); err != nil {
			log.Fatalf("Failed to write result file: %v", err)
		}
		fmt.Printf("Full result written to %s\n", backtestOutput)
	}
}

func printReport(result *dto.BacktestResult) {
	s := result.Summary

	fmt.Printf("Backtest %s - %s\n", utils.FormatDate(result.StartDate), utils.FormatDate(result.EndDate))
	fmt.Println("--------------------------------------------------")
	fmt.Printf("Total trades:       %d\n", s.TotalTrades)
	fmt.Printf("Winning trades:     %d\n", s.WinningTrades)
	fmt.Printf("Losing trades:      %d\n", s.LosingTrades)
	fmt.Printf("Win rate:           %s\n", utils.FormatPercentage(s.WinRate))
	fmt.Printf("Avg return:         %s\n", utils.FormatPercentage(s.AvgReturnPct))
	fmt.Printf("Total return:       %s\n", utils.FormatPercentage(s.TotalReturnPct))
	fmt.Printf("Profit factor:      %.2f\n", s.ProfitFactor)
	fmt.Printf("Max drawdown:       %s\n", utils.FormatPercentage(s.MaxDrawdownPct))
	fmt.Printf("Sharpe ratio:       %.2f\n", s.SharpeRatio)
	fmt.Printf("Avg holding days:   %.1f\n", s.AvgHoldingDays)
	fmt.Printf("Best trade:         %s\n", utils.FormatPercentage(s.BestTradePct))
	fmt.Printf("Worst trade:        %s\n", utils.FormatPercentage(s.WorstTradePct))
	fmt.Printf("Initial capital:    %.2f\n", s.InitialCapital)
	fmt.Printf("Final equity:       %.2f\n", s.FinalEquity)

	if result.Halted {
		haltedOn := ""
		if result.HaltedDate != nil {
			haltedOn = " on " + utils.FormatDate(*result.HaltedDate)
		}
		fmt.Printf("Trading halted by risk limit%s\n", haltedOn)
	}
}
