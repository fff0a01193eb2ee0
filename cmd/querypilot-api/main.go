package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/catalog/memory"
	catalogpostgres "github.com/querypilot/querypilot/internal/catalog/postgres"
	"github.com/querypilot/querypilot/internal/chat"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/migrations"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
	duckdbengine "github.com/querypilot/querypilot/internal/query/duckdb"
	"github.com/querypilot/querypilot/internal/sqlpool"
)

func main() {
	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	repo, closeStore, err := openStore(startupCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	if cfg.Auth.BootstrapAdminUsername != "" {
		created, err := migrations.EnsureAdmin(startupCtx, repo, migrations.AdminSeed{
			Username: cfg.Auth.BootstrapAdminUsername,
			Password: cfg.Auth.BootstrapAdminPassword,
			Schema:   cfg.Auth.BootstrapAdminSchema,
		})
		if err != nil {
			logger.Error("failed to bootstrap admin", slog.Any("error", err))
			os.Exit(1)
		}
		if created {
			logger.Info("bootstrap admin created", slog.String("username", cfg.Auth.BootstrapAdminUsername))
		}
	}

	warehouseDB, err := openWarehouse(startupCtx, cfg)
	if err != nil {
		logger.Error("failed to open warehouse", slog.String("driver", cfg.Warehouse.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = warehouseDB.Close() }()
	executorOpts := []query.ExecutorOption{query.WithStatementTimeout(cfg.Warehouse.StatementTimeout)}
	if cfg.Warehouse.Driver == config.WarehouseDriverDuckDB {
		executorOpts = append(executorOpts, query.WithStatementCheck(duckdbengine.SingleStatement))
	}
	executor := query.NewExecutor(warehouseDB, executorOpts...)

	synthesizer, err := nl2sql.FromConfig(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize sql synthesizer", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.AI.Provider == config.AIProviderOffline {
		logger.Warn("sql synthesizer is offline; generated SQL is a placeholder")
	}

	tokens, err := auth.NewTokenCodec(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to initialize token codec", slog.Any("error", err))
		os.Exit(1)
	}

	service := chat.NewService(chat.Dependencies{
		Users:       repo,
		Sessions:    repo,
		Audit:       audit.NewRecorder(repo, logger),
		Synthesizer: synthesizer,
		Warehouse:   executor,
		Tokens:      tokens,
		Logger:      logger,
	}, chat.Options{
		PreviewRows:       cfg.Warehouse.PreviewRows,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		SessionListLimit:  cfg.Chat.SessionListLimit,
		QueryLogListLimit: cfg.Chat.QueryLogListLimit,
	})

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger: logger,
		Tokens: tokens,
		Chat:   service,
		Readiness: api.CombineReadinessChecks(
			api.NamedCheck("store", repo.HealthCheck),
			api.NamedCheck("warehouse", executor.Ping),
		),
		DependencyTimeout: 2 * time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("ai_provider", synthesizer.Provider()),
			slog.String("warehouse_driver", cfg.Warehouse.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Repository, func(), error) {
	if cfg.Store.DSN == config.StoreDSNMemory {
		logger.Warn("using in-memory store; users, history and sessions are lost on restart")
		return memory.NewRepository(), func() {}, nil
	}
	db, err := sqlpool.Open(ctx, sqlpool.Config{
		Name:            "store",
		Driver:          sqlpool.DriverPgx,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return catalogpostgres.NewRepository(db), func() { _ = db.Close() }, nil
}

func openWarehouse(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	pool := sqlpool.Config{
		Name:            "warehouse",
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	}
	switch cfg.Warehouse.Driver {
	case config.WarehouseDriverDuckDB:
		views, err := duckdbengine.ParseViews(cfg.Warehouse.ParquetViews)
		if err != nil {
			return nil, err
		}
		return duckdbengine.Open(ctx, duckdbengine.Config{Pool: pool, Views: views})
	case config.WarehouseDriverPostgres:
		pool.Driver = sqlpool.DriverPgx
		return sqlpool.Open(ctx, pool)
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Warehouse.Driver)
	}
}
