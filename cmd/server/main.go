// Package main runs the collector service: scheduled master sync and daily
// price collection, plus an HTTP surface for manual triggers and lookups.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"krx-collector/internal/config"
	"krx-collector/internal/kis"
	"krx-collector/internal/master"
	"krx-collector/internal/scheduler"
	"krx-collector/internal/storage/migrations"
	pgstore "krx-collector/internal/storage/postgres"
	"krx-collector/internal/sync"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
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
	runLock := pgstore.NewAdvisoryLock(pool)

	limiter := rate.NewLimiter(rate.Limit(cfg.ProviderRatePerSec), 1)
	clientOpts := []kis.ClientOption{
		kis.WithRateLimiter(limiter),
		kis.WithLogger(logger.Named("kis")),
	}
	if cfg.KISBaseURL != "" {
		clientOpts = append(clientOpts, kis.WithBaseURL(cfg.KISBaseURL))
	}
	client := kis.NewClient(cfg.KISAppKey, cfg.KISAppSecret, clientOpts...)

	fetcher := master.NewFetcher(instrumentStore, master.WithLogger(logger.Named("master")))

	orch := sync.New(sync.Options{
		InstrumentStore: instrumentStore,
		PriceBarStore:   priceBarStore,
		FeatureStore:    featureStore,
		RunLock:         runLock,
		Client:          client,
		Logger:          logger.Named("sync"),
	})

	sched, err := scheduler.New(cfg.Timezone, logger.Named("scheduler"))
	if err != nil {
		return err
	}

	masterJob := func(ctx context.Context) error {
		result := fetcher.SyncAll(ctx)
		for market, err := range result.Errors {
			logger.Error("master sync failed for market",
				zap.String("market", string(market)), zap.Error(err))
		}
		return nil
	}
	collectJob := func(ctx context.Context) error {
		_, err := orch.RunIncrementalAll(ctx)
		if errors.Is(err, sync.ErrRunInProgress) {
			logger.Warn("price collection skipped, run already in progress")
			return nil
		}
		return err
	}

	if err := sched.AddJob(cfg.MasterCron, "master-sync", masterJob); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.CollectCron, "price-collect", collectJob); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	if cfg.SyncOnStartup {
		go func() {
			if err := masterJob(ctx); err != nil {
				logger.Error("startup master sync failed", zap.Error(err))
			}
			if err := collectJob(ctx); err != nil {
				logger.Error("startup price collection failed", zap.Error(err))
			}
		}()
	}

	api := &apiServer{
		instruments: instrumentStore,
		bars:        priceBarStore,
		features:    featureStore,
		fetcher:     fetcher,
		orch:        orch,
		logger:      logger.Named("api"),
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
