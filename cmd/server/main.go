// Package main is the entry point for the Folio portfolio valuation service.
// Folio ingests a broker transaction ledger, rewrites it for detected stock
// splits, derives FIFO cost basis positions and keeps their market values
// fresh through scheduled refresh cycles.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/clientdata"
	"github.com/aristath/folio/internal/clients/exchangerate"
	"github.com/aristath/folio/internal/clients/yahoo"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/ledger"
	"github.com/aristath/folio/internal/markethours"
	"github.com/aristath/folio/internal/marketdata"
	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/internal/services"
	"github.com/aristath/folio/internal/state"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("display_currency", cfg.DisplayCurrency).
		Str("primary_exchange", cfg.PrimaryExchange).
		Msg("Starting Folio")

	// Cache database for provider responses: tickers, rates, prices.
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	if err := cacheRepo.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create cache schema")
	}

	// Upstream clients and the market data services built on them.
	yahooClient := yahoo.NewClient(log)
	rateClient := exchangerate.NewClient(cacheRepo, log)

	rateCache := marketdata.NewRateCache(rateClient, log)
	resolver := marketdata.NewTickerResolver(yahooClient, cacheRepo, log)
	historical := marketdata.NewHistoricalService(yahooClient, cacheRepo, log)
	hours := markethours.NewService()

	refresher := marketdata.NewRefresher(yahooClient, resolver, hours, cacheRepo, marketdata.RefresherConfig{
		Staleness: cfg.QuoteStaleness,
		Exchange:  cfg.PrimaryExchange,
	}, log)

	aggregator := portfolio.NewAggregator(rateCache, log)
	growth := portfolio.NewGrowthService(historical, resolver, rateCache, log)

	// Memo keywords: built-in table, overridable per deployment.
	keywords := ledger.DefaultKeywords()
	keywordPath := filepath.Join(cfg.DataDir, "keywords.yaml")
	if _, err := os.Stat(keywordPath); err == nil {
		keywords, err = ledger.LoadKeywords(keywordPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", keywordPath).Msg("Failed to load keyword config")
		}
		log.Info().Str("path", keywordPath).Msg("Loaded keyword overrides")
	}

	stateManager := state.NewManager(log)

	// Optional snapshot backup to S3-compatible storage.
	var backup *reliability.BackupService
	if cfg.Backup.Enabled() {
		backup, err = reliability.NewBackupService(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize snapshot backup")
		}
		log.Info().Msg("Snapshot backup enabled")
	}

	session := services.NewSessionService(
		stateManager,
		refresher,
		aggregator,
		growth,
		resolver,
		rateCache,
		backup,
		keywords,
		filepath.Join(cfg.DataDir, "state.msgpack"),
		cfg.DisplayCurrency,
		log,
	)

	// Restore the previous session if a snapshot exists, locally or in the
	// backup bucket. A fresh start is not an error.
	if err := session.Restore(context.Background()); err != nil {
		log.Info().Err(err).Msg("No session snapshot restored, starting empty")
	} else {
		st := session.Current()
		log.Info().
			Int("transactions", len(st.Ledger)).
			Int("positions", len(st.Positions)).
			Msg("Session restored from snapshot")
	}

	sched := scheduler.New(log)
	refreshJob := &services.RefreshJob{Session: session}
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register refresh job")
	}
	sched.Start()
	defer sched.Stop()

	// Prime prices for a restored session right away instead of waiting
	// for the first cron tick.
	go sched.RunNow(refreshJob)

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Session: session,
		Config:  cfg,
		DevMode: cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Folio stopped")
}
