package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasintel/atlas-engine/internal/api"
	"github.com/atlasintel/atlas-engine/internal/backtest"
	"github.com/atlasintel/atlas-engine/internal/cache"
	"github.com/atlasintel/atlas-engine/internal/config"
	"github.com/atlasintel/atlas-engine/internal/metrics"
	"github.com/atlasintel/atlas-engine/internal/monitor"
	"github.com/atlasintel/atlas-engine/internal/patterns"
	"github.com/atlasintel/atlas-engine/internal/ratelimit"
	"github.com/atlasintel/atlas-engine/internal/services"
	"github.com/atlasintel/atlas-engine/internal/source"
	"github.com/atlasintel/atlas-engine/internal/store"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting atlas-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	db, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("path", cfg.Store.Path), slog.Any("error", err))
		os.Exit(1)
	}
	db.RiskTTL = cfg.Store.RiskTTL
	defer db.Close()

	var sources []source.Source
	if cfg.Remote.Enabled && cfg.Remote.BaseURL != "" {
		remoteLimiter := ratelimit.New("remote", cfg.Remote.Interval, nil)
		remoteClient := source.NewRemoteClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
		sources = append(sources, source.NewRemoteSource(remoteClient, remoteLimiter))
	}
	var generativeClient *source.GenerativeClient
	if cfg.Generative.Enabled && cfg.Generative.BaseURL != "" {
		generativeLimiter := ratelimit.New("generative", cfg.Generative.Interval, nil)
		generativeClient = source.NewGenerativeClient(cfg.Generative.BaseURL, cfg.Generative.APIKey, source.GenerationConfig{
			Model:           cfg.Generative.Model,
			Temperature:     cfg.Generative.Temperature,
			MaxOutputTokens: cfg.Generative.MaxOutputTokens,
		}, cfg.Generative.Timeout)
		sources = append(sources, source.NewGenerativeSource(generativeClient, generativeLimiter))
	}
	sources = append(sources, source.NewFallbackSource())

	resolver := source.NewResolver(logger, db, sources...)

	rules, err := monitor.LoadAlertRules(cfg.Monitor.RulesPath, logger)
	if err != nil {
		logger.Error("failed to load alert rules", slog.String("path", cfg.Monitor.RulesPath), slog.Any("error", err))
		os.Exit(1)
	}

	var notifier monitor.Notifier = monitor.LogNotifier{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		notifier = monitor.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}

	mon := monitor.NewMonitor(logger, monitor.Config{
		Interval:    cfg.Monitor.Interval,
		MinSeverity: cfg.Monitor.MinSeverity,
		Regions:     cfg.Monitor.Regions,
		Categories:  cfg.Monitor.Categories,
		MaxEvents:   cfg.Monitor.MaxEvents,
		MaxAlerts:   cfg.Monitor.MaxAlerts,
	}, resolver, rules, monitor.NewCategoryTrends(), notifier, db, cacheProvider, nil)
	defer mon.Stop()

	benchmarkClient := backtest.NewBenchmarkClient(backtest.BenchmarkClientConfig{
		BaseURL:  cfg.Benchmark.BaseURL,
		Timeout:  cfg.Benchmark.Timeout,
		CacheTTL: cfg.Benchmark.TTL,
	}, cacheProvider, logger)

	var summarizer backtest.Summarizer
	if generativeClient != nil {
		summarizer = generativeClient
	}
	backtestEngine := backtest.NewEngine(logger, benchmarkClient, summarizer, db)

	miner := patterns.NewMiner(logger, db)
	service := services.NewAnalysisService(logger, resolver, mon, backtestEngine, miner, db)

	handlers := api.NewHandlers(service, logger)
	server := api.NewServer(cfg.Server, handlers.Router(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if err := mon.Start(); err != nil {
		logger.Error("failed to start crisis monitoring", slog.Any("error", err))
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("atlas-engine stopped")
}
