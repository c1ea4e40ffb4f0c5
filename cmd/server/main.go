// flowcore server - workflow orchestration engine
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/smilemakc/flowcore/internal/agent"
	"github.com/smilemakc/flowcore/internal/blueprint"
	"github.com/smilemakc/flowcore/internal/cache"
	"github.com/smilemakc/flowcore/internal/config"
	"github.com/smilemakc/flowcore/internal/engine"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/executor/builtin"
	"github.com/smilemakc/flowcore/internal/httpapi"
	"github.com/smilemakc/flowcore/internal/logger"
	"github.com/smilemakc/flowcore/internal/memory"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
	"github.com/smilemakc/flowcore/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting flowcore server", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.NewProvider(ctx, tracing.FromConfig(cfg.Tracing))
	if err != nil {
		appLogger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if tracer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("failed to shut down tracer", "error", err)
			}
		}()
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	redisClient := redisCache.Client()
	defer redisCache.Close()
	appLogger.Info("redis connected")

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.URL)))
	sqldb.SetMaxOpenConns(cfg.Database.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.Database.MinConnections)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxConnLifetime)
	sqldb.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Logging.Level == "debug" {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	appLogger.Info("database connected", "max_conns", cfg.Database.MaxConnections)

	reg := registry.New()
	if err := reg.Register(node.KindTool, "html_clean", builtin.NewHTMLCleanTool(), false); err != nil {
		appLogger.Error("failed to register html_clean tool", "error", err)
		os.Exit(1)
	}

	mgr := executor.NewManager()
	dispatcher := executor.NewDispatcher(mgr, executor.NewMemoryCache())
	bus := events.NewBus(appLogger.Slog())

	checkpoints := engine.NewMemoryCheckpointStore()

	blueprintStore := blueprint.NewStore(redisClient, blueprint.Config{TTL: cfg.Engine.DraftStoreTTL})
	loader := blueprint.NewLoader(blueprintStore)

	eng := engine.New(dispatcher, bus, checkpoints, loader, appLogger.Slog())
	builtin.RegisterAll(mgr, reg, eng)

	unifiedMemory := memory.NewUnifiedMemory(memory.DefaultUnifiedConfig(), redisClient, db)
	mgr.Register(node.KindAgent, agent.NewExecutor(reg, unifiedMemory))

	runs := httpapi.NewRunStore()
	router := httpapi.NewRouter(blueprintStore, loader, eng, bus, runs, appLogger)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("graceful shutdown failed", "error", err)
	}
}
