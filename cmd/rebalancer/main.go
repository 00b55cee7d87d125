package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/rebalancer/internal/config"
	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/rebalancer"
	"github.com/elys-network/rebalancer/internal/state"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

// main is the entry point for the strategy rebalancer.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Strategy rebalancer starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Seed portfolio and risk limits ---
	if err := ensurePortfolio(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio")
	}

	limits, err := config.ResolveRiskLimits()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid risk limits configuration")
	}
	if _, err := state.LoadActiveRiskLimits(ctx, config.DefaultRiskConfigName); err != nil {
		if !errors.Is(err, state.ErrRiskLimitsNotFound) {
			log.Fatal().Err(err).Msg("Failed to load active risk limits")
		}
		log.Warn().Msg("No active risk limits stored, saving configured limits.")
		if _, err := state.SaveRiskLimits(ctx, limits, config.DefaultRiskConfigName, config.DefaultRiskConfigVersion, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial risk limits")
		}
	}

	// --- 3. Service, API and scheduler ---
	store := state.PostgresStore{}
	service, err := rebalancer.NewService(rebalancer.Config{
		Store:          store,
		Manager:        config.PortfolioManager,
		RiskConfigName: config.DefaultRiskConfigName,
		FallbackLimits: limits,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rebalancer service")
	}

	webServer := web.NewWebServer(config.WebPort, service, store)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting rebalancer API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	scheduler, err := rebalancer.NewScheduler(ctx, service, config.RebalanceSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	// Run first cycle immediately
	scheduler.RunNow()
	scheduler.Start()
	log.Info().Str("schedule", config.RebalanceSchedule).Msg("Rebalancer running")

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Strategy rebalancer stopped")
}

// ensurePortfolio creates the managed portfolio on first start.
func ensurePortfolio(ctx context.Context) error {
	portfolio, err := state.LoadPortfolio(ctx, config.PortfolioManager)
	if err == nil {
		log.Info().
			Str("manager", portfolio.Manager.Short()).
			Time("lastRebalance", portfolio.LastRebalance).
			Bool("emergencyPause", portfolio.EmergencyPause).
			Msg("Loaded portfolio")
		return nil
	}
	if !errors.Is(err, state.ErrPortfolioNotFound) {
		return err
	}

	portfolio, err = types.NewPortfolio(config.PortfolioManager, config.RebalanceThreshold, config.MinRebalanceInterval, time.Now())
	if err != nil {
		return err
	}
	portfolio.LegacyFixedThreshold = config.LegacyFixedThreshold
	if err := state.SavePortfolio(ctx, portfolio); err != nil {
		return err
	}
	log.Info().Str("manager", portfolio.Manager.Short()).Msg("Created portfolio")
	return nil
}
