/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, PAYROLL_* environment, defaults)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Wire statutory calculator, benefit registry and engine
  5. Configure HTTP router
  6. Start the monthly scheduler when enabled
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults (SQLite file payroll.db)
  ./server

  # Run with PostgreSQL
  PAYROLL_DATABASE_DRIVER=postgres PAYROLL_DATABASE_URL=postgres://... ./server

  # Run with a config file
  ./server -config=config.yaml

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - payroll/engine.go: Engine
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/benefits"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/logging"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/statutory"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

// backend is what every store driver provides.
type backend interface {
	payroll.Directory
	payroll.Store
	api.EmployeeStore
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, closeDB, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer closeDB()

	calc := statutory.New()
	reg := benefits.DefaultRegistry()
	engine := payroll.NewEngine(db, db, payroll.NewCalculator(calc, reg), payroll.EngineConfig{
		DefaultWorkingDays: cfg.Payroll.DefaultWorkingDays,
		Years:              payroll.YearRange{Min: cfg.Payroll.MinYear, Max: cfg.Payroll.MaxYear},
		Workers:            cfg.Payroll.Workers,
	}, logger)

	handler := api.NewHandler(engine, db, calc, reg, logger)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	var scheduler *api.GenerationScheduler
	if cfg.Scheduler.Enabled {
		scheduler = api.NewGenerationScheduler(engine, logger)
		scheduler.RunDay = cfg.Scheduler.RunDay
		scheduler.Interval = cfg.Scheduler.Interval
		scheduler.Actor = cfg.Scheduler.Actor
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// openStore opens the configured driver and returns a close function.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		db := postgres.New(pool)
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, db.Close, nil

	case "memory":
		return store.NewBackend(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
