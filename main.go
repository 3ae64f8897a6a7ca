package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dex-dip-bot/config"
	"dex-dip-bot/internal/bot"
	"dex-dip-bot/internal/cache"
	"dex-dip-bot/internal/database"
	"dex-dip-bot/internal/events"
	"dex-dip-bot/internal/metrics"
	"dex-dip-bot/internal/venue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Int("bots", len(cfg.BotConfigs)).Msg("starting")

	eventBus := events.NewBus()

	// Persistence is optional: without it the bots run from memory and
	// restart flat.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		cancel()
		repo = database.NewRepository(db)
	} else {
		logger.Warn().Msg("database disabled, state will not survive restarts")
	}

	// Redis degrades gracefully: order id sequences fall back to random ids.
	var cacheSvc *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheSvc, err = cache.New(cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer cacheSvc.Close()
	}

	adapter := buildAdapter(cfg, logger)
	status := adapter.CheckConnectivity(context.Background())
	if !status.APIConnected {
		logger.Fatal().Strs("errors", status.Errors).Msg("venue unreachable")
	}
	logger.Info().Int64("latency_ms", status.LatencyMs).Msg("venue connectivity verified")

	manager, err := bot.NewManager(cfg, adapter, repo, cacheSvc, eventBus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("fleet construction failed")
	}

	restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.RestoreAll(restoreCtx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("state restore failed")
	}
	cancel()

	if cfg.MetricsConfig.Enabled {
		srv := metrics.Serve(cfg.MetricsConfig.Addr)
		defer srv.Close()
		logger.Info().Str("addr", cfg.MetricsConfig.Addr).Msg("metrics endpoint listening")
	}

	// Optional websocket price feed keeps the cache warm between cycles.
	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	if cfg.VenueConfig.PriceStreamEnabled && cfg.VenueConfig.PriceStreamURL != "" {
		stream := venue.NewPriceStream(cfg.VenueConfig.PriceStreamURL, cfg.VenueConfig.Pair,
			func(price float64, ts time.Time) {
				if cacheSvc != nil {
					_ = cacheSvc.SetLastPrice(streamCtx, cfg.VenueConfig.Pair, price)
				}
			}, logger)
		go stream.Run(streamCtx)
	}

	if err := manager.StartAll(); err != nil {
		logger.Fatal().Err(err).Msg("fleet start failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	manager.StopAll()
	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func buildAdapter(cfg *config.Config, logger zerolog.Logger) venue.Adapter {
	if cfg.VenueConfig.MockMode {
		logger.Warn().Msg("mock venue enabled, no real orders will be placed")
		return venue.NewMockAdapter(100)
	}
	return venue.NewAggregatorClient(
		cfg.VenueConfig.APIKey,
		cfg.VenueConfig.BaseURL,
		cfg.VenueConfig.BaseMint,
		cfg.VenueConfig.QuoteMint,
	)
}
