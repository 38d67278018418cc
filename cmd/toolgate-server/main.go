package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/kingerharshit/toolgate/internal/api"
	"github.com/kingerharshit/toolgate/internal/chread"
	"github.com/kingerharshit/toolgate/internal/engine"
	"github.com/kingerharshit/toolgate/internal/gatekeeper"
	"github.com/kingerharshit/toolgate/internal/storage"
	"github.com/kingerharshit/toolgate/internal/store"
	"github.com/kingerharshit/toolgate/internal/trust"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TOOLGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("TOOLGATE_HTTP_PORT", "8080")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	authCacheTTL := envOrDefaultInt("TOOLGATE_AUTH_CACHE_TTL_S", 30)
	policyCacheTTL := envOrDefaultInt("TOOLGATE_POLICY_CACHE_TTL_S", 5)
	trustCacheTTL := envOrDefaultInt("TOOLGATE_TRUST_CACHE_TTL_S", 60)
	catalogPath := os.Getenv("TOOLGATE_TRUST_CATALOG")
	executorEndpoint := os.Getenv("TOOLGATE_EXECUTOR_ENDPOINT")
	executorTimeout := envOrDefaultInt("TOOLGATE_EXECUTOR_TIMEOUT_S", 30)
	internalTools := splitList(os.Getenv("TOOLGATE_INTERNAL_TOOLS"))

	logger.Info("starting toolgate server",
		zap.String("http_port", httpPort),
		zap.Int("policy_cache_ttl_s", policyCacheTTL),
		zap.String("trust_catalog", catalogPath),
	)

	// Postgres pool (required: policies, agents, tool provenance)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for decision HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Trust resolution: static catalog first, then per-agent provenance rows.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := trust.NewCatalogResolver(catalogPath, logger)
	if err != nil {
		logger.Fatal("failed to load trust catalog", zap.Error(err))
	}
	go func() {
		if err := catalog.Watch(ctx); err != nil {
			logger.Warn("trust catalog watch stopped", zap.Error(err))
		}
	}()
	storeResolver := trust.NewStoreResolver(pgStore,
		time.Duration(trustCacheTTL)*time.Second, logger)
	resolver := trust.ChainResolver{catalog, storeResolver}
	classifier := trust.NewClassifier(resolver, trust.NewLatch(), logger)

	// Policy evaluation
	cache := store.NewCachingPolicyReader(pgStore,
		time.Duration(policyCacheTTL)*time.Second, logger)
	eng := engine.NewEngine(cache, engine.Config{InternalTools: internalTools}, logger)

	// Executor (dispatch only works when a backend is configured)
	var executor gatekeeper.Executor
	if executorEndpoint != "" {
		executor = gatekeeper.NewHTTPExecutor(executorEndpoint,
			time.Duration(executorTimeout)*time.Second)
		logger.Info("tool executor configured", zap.String("endpoint", executorEndpoint))
	} else {
		logger.Info("no TOOLGATE_EXECUTOR_ENDPOINT set, dispatch endpoint disabled")
	}

	gk := gatekeeper.New(classifier, eng, executor, writer, logger)

	// HTTP API server
	deps := &api.Dependencies{
		Store:      pgStore,
		Gatekeeper: gk,
		Cache:      cache,
		Reader:     chReader,
		Logger:     logger,
		CacheTTL:   time.Duration(authCacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("toolgate server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
