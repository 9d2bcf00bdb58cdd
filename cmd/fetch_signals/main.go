package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"signalRelay/config"
	"signalRelay/internal/adapters/binanceclient"
	"signalRelay/internal/adapters/logger"
	"signalRelay/internal/app"
	"signalRelay/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	symbol := flag.String("symbol", cfg.Stream.Symbol, "instrument to query")
	interval := flag.String("interval", cfg.Stream.Interval.String(), "candle interval")
	limit := flag.Int("limit", cfg.BatchLimit, "number of candles to fetch (1-1000)")
	csvPath := flag.String("csv", "", "optional CSV output file")
	flag.Parse()

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel, "fetch_signals")
	defer func() { _ = appLogger.Sync() }()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		BaseURL:     cfg.BinanceRESTURL,
		HTTPTimeout: cfg.BinanceHTTPTimeout,
		Logger:      appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 4. Query the board
	board, err := app.NewBoard(binanceClient, appLogger, app.Query{Limit: cfg.BatchLimit})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize board: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BinanceHTTPTimeout+5*time.Second)
	defer cancel()
	res := board.Recent(ctx, app.Query{Symbol: *symbol, Interval: *interval, Limit: *limit})
	if !res.Success {
		log.Fatalf("Error fetching signals: %v", res.Err)
	}

	fmt.Printf("%s: %d closed candles\n", res.Stream, res.Count)
	fmt.Printf("  rising %d (%.1f%%), falling %d, ties %d\n",
		res.Stats.Rising, res.Stats.RisingRatio*100, res.Stats.Falling, res.Stats.Ties)
	fmt.Printf("  longest rising run %d, longest falling run %d\n", res.Stats.LongestRising, res.Stats.LongestFalling)
	fmt.Printf("  current: %s x%d\n", res.Stats.CurrentSignal, res.Stats.CurrentStreak)

	if *csvPath == "" {
		for _, ev := range res.Events {
			fmt.Printf("%s %s %.2f\n", ev.Time.UTC().Format("2006-01-02 15:04:05"), ev.Signal.Code(), ev.Price)
		}
		return
	}
	if err := utils.WriteSignalsToCSV(res.Events, *csvPath); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *csvPath, "count": res.Count})
}
