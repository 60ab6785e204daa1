package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/dma-digital/automation-agent/internal/agent"
	"github.com/dma-digital/automation-agent/internal/api"
	"github.com/dma-digital/automation-agent/internal/audit"
	"github.com/dma-digital/automation-agent/internal/brain"
	"github.com/dma-digital/automation-agent/internal/config"
	"github.com/dma-digital/automation-agent/internal/delivery"
	"github.com/dma-digital/automation-agent/internal/idempotency"
	"github.com/dma-digital/automation-agent/internal/publisher"
	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.Load()

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting agent server",
		zap.String("agent_name", cfg.AgentName),
		zap.String("agent_mode", cfg.AgentMode),
		zap.Int("port", cfg.AppPort),
		zap.Bool("brain_enabled", cfg.BrainEnabled),
	)

	// Ruleset — resolved once; an external schema directory overrides the
	// built-in contracts for the process lifetime.
	ruleset, err := rules.Resolve(cfg.RulesDir)
	if err != nil {
		logger.Fatal("failed to resolve ruleset", zap.Error(err))
	}
	if cfg.RulesDir != "" {
		logger.Info("external ruleset loaded", zap.String("dir", cfg.RulesDir))
	}

	// Decision strategy — generative only when explicitly enabled and
	// credentials are present, deterministic templates otherwise.
	var strategy brain.Strategy
	if cfg.BrainEnabled && cfg.OpenAIAPIKey != "" {
		strategy = brain.NewOpenAIStrategy(brain.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			Model:           cfg.OpenAIModel,
			Temperature:     cfg.OpenAITemperature,
			MaxOutputTokens: cfg.OpenAIMaxOutputTokens,
		})
		logger.Info("generative strategy enabled", zap.String("model", cfg.OpenAIModel))
	} else {
		strategy = brain.NewTemplateStrategy()
	}
	engine, err := brain.NewEngine(strategy)
	if err != nil {
		logger.Fatal("failed to build decision engine", zap.Error(err))
	}

	// Idempotency store — Postgres when a DSN is configured, file otherwise.
	var idemStore idempotency.Store
	if cfg.IdempotencyPostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.IdempotencyPostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		idemStore, err = idempotency.NewPostgresStore(context.Background(), db)
		if err != nil {
			logger.Fatal("failed to init postgres idempotency store", zap.Error(err))
		}
		logger.Info("postgres idempotency store connected")
	} else {
		fileStore, err := idempotency.NewFileStore(cfg.DataDir)
		if err != nil {
			logger.Fatal("failed to load idempotency store", zap.Error(err))
		}
		idemStore = fileStore
	}
	defer idemStore.Close()

	// Audit — JSONL file is primary; ClickHouse mirrors asynchronously when
	// a DSN is configured.
	var mirror audit.Mirror
	if cfg.AuditClickHouseDSN != "" {
		chMirror, err := audit.NewClickHouseMirror(cfg.AuditClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse audit mirror unavailable, continuing with file only",
				zap.Error(err),
			)
		} else {
			mirror = chMirror
			logger.Info("clickhouse audit mirror connected")
		}
	}
	auditLogger := audit.NewLogger(cfg.AuditLogPath, mirror)
	defer auditLogger.Close()

	dispatcher := delivery.NewDispatcher(delivery.Config{
		AgentMode:        cfg.AgentMode,
		MakeWebhookURL:   cfg.MakeWebhookURL,
		MakeWebhookToken: cfg.MakeWebhookToken,
		GHLBaseURL:       cfg.GHLBaseURL,
		GHLToken:         cfg.GHLToken,
		GHLWhatsAppPath:  cfg.GHLWhatsAppPath,
		GHLAPIVersion:    cfg.GHLAPIVersion,
		Timeout:          cfg.RequestTimeout,
	}, logger)

	pub := publisher.New(cfg.MaestroBaseURL, ruleset, logger,
		publisher.WithRetries(cfg.PublishRetries),
		publisher.WithTimeout(cfg.RequestTimeout),
	)

	handler := agent.New(agent.Deps{
		AgentName:  cfg.AgentName,
		Rules:      ruleset,
		Engine:     engine,
		Dispatcher: dispatcher,
		Publisher:  pub,
		Idem:       idemStore,
		Audit:      auditLogger,
		ReportsDir: cfg.ReportsDir,
		Logger:     logger,
	})

	deps := &api.Dependencies{
		Agent:           handler,
		AgentName:       cfg.AgentName,
		AgentMode:       cfg.AgentMode,
		InternalKey:     cfg.InternalAgentAPIKey,
		InternalKeyHash: cfg.InternalAgentAPIKeyHash,
		Logger:          logger,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.AppHost, cfg.AppPort),
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

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("agent server stopped")
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
