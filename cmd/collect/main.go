// Package main provides a one-shot CLI for the pipeline: master sync,
// incremental collection, forced backfill, or feature recompute.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"krx-collector/internal/config"
	"krx-collector/internal/kis"
	"krx-collector/internal/master"
	"krx-collector/internal/storage/migrations"
	pgstore "krx-collector/internal/storage/postgres"
	"krx-collector/internal/sync"
)

func main() {
	mode := flag.String("mode", "incremental", "one of: master, incremental, backfill, features")
	days := flag.Int("days", sync.InitialBackfillDays, "day span for -mode backfill")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(*mode, *days, logger); err != nil {
		logger.Fatal("collect failed", zap.Error(err))
	}
}

func run(mode string, days int, logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	instrumentStore := pgstore.NewInstrumentStore(pool)
	priceBarStore := pgstore.NewPriceBarStore(pool)
	featureStore := pgstore.NewFeatureStore(pool)

	switch mode {
	case "master":
		result := master.NewFetcher(instrumentStore, master.WithLogger(logger)).SyncAll(ctx)
		for market, err := range result.Errors {
			logger.Error("market failed", zap.String("market", string(market)), zap.Error(err))
		}
		fmt.Printf("master sync: %d instruments (%d markets failed)\n", result.Total, len(result.Errors))
		return nil

	case "features":
		rows, err := featureStore.RecomputeAllHistory(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("feature recompute: %d rows\n", rows)
		return nil

	case "incremental", "backfill":
		clientOpts := []kis.ClientOption{
			kis.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.ProviderRatePerSec), 1)),
			kis.WithLogger(logger.Named("kis")),
		}
		if cfg.KISBaseURL != "" {
			clientOpts = append(clientOpts, kis.WithBaseURL(cfg.KISBaseURL))
		}

		orch := sync.New(sync.Options{
			InstrumentStore: instrumentStore,
			PriceBarStore:   priceBarStore,
			FeatureStore:    featureStore,
			RunLock:         pgstore.NewAdvisoryLock(pool),
			Client:          kis.NewClient(cfg.KISAppKey, cfg.KISAppSecret, clientOpts...),
			Logger:          logger.Named("sync"),
		})

		var summary *sync.RunSummary
		if mode == "incremental" {
			summary, err = orch.RunIncrementalAll(ctx)
		} else {
			summary, err = orch.RunFullBackfillAll(ctx, days)
		}
		if err != nil {
			return err
		}
		fmt.Println(summary.Message)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}
