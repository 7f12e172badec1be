package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brightpath-assess/toolgate/internal/api"
	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/chread"
	"github.com/brightpath-assess/toolgate/internal/plansource"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"github.com/brightpath-assess/toolgate/internal/storage"
	"github.com/brightpath-assess/toolgate/internal/store"
	"github.com/brightpath-assess/toolgate/internal/tools"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TOOLGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("TOOLGATE_HTTP_PORT", "8080")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("TOOLGATE_AUTH_CACHE_TTL_S", 30)
	planCacheTTL := envOrDefaultInt("TOOLGATE_PLAN_CACHE_TTL_S", 60)

	logger.Info("starting toolgate server",
		zap.String("http_port", httpPort),
		zap.Int("auth_cache_ttl_s", cacheTTL),
		zap.Int("plan_cache_ttl_s", planCacheTTL),
	)

	// Catalog — built-in tools registered here, then frozen for the process
	cat := catalog.New(logger)
	tools.RegisterBuiltin(cat)
	cat.Freeze()
	logger.Info("tool catalog frozen", zap.Int("tools", len(cat.Descriptors())))

	resolver := resolve.New(cat, logger)
	vis := visibility.New(cat, logger)

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

	// Postgres pool (required for HTTP API)
	var pgStore *store.Store
	var plans plansource.Source
	if postgresDSN != "" {
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
		pgStore = store.NewStore(db)
		plans = plansource.NewPostgresSource(plansource.PostgresSourceConfig{
			DB:       db,
			CacheTTL: time.Duration(planCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres connected")
	} else {
		logger.Info("no POSTGRES_DSN set, HTTP API will not be available")
	}

	// ClickHouse reader (for resolutions/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		var err error
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// HTTP API server (only starts if Postgres is configured)
	var httpServer *http.Server
	if pgStore != nil {
		deps := &api.Dependencies{
			Store:      pgStore,
			Catalog:    cat,
			Resolver:   resolver,
			Visibility: vis,
			Plans:      plans,
			Writer:     writer,
			Reader:     chReader,
			Logger:     logger,
			CacheTTL:   time.Duration(cacheTTL) * time.Second,
		}
		httpServer = &http.Server{
			Addr:         ":" + httpPort,
			Handler:      api.NewRouter(deps),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("http server listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("http server failed", zap.Error(err))
			}
		}()
	} else {
		logger.Fatal("POSTGRES_DSN is required")
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
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
