/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the edge order server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags and environment (config package)
  2. Initialize SQLite store (ledger + catalog)
  3. Wire broadcast hub, orders manager, sync service
  4. Start the cloud pusher (if a cloud URL is configured)
  5. Start HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Cancel the pusher (flushes buffered events)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -d="./data/edge.db"

  # Run without cloud sync, in-memory database
  ./server -d=":memory:"

  # Full edge deployment
  EDGE_CLOUD_URL=https://cloud.example.com/ingest ./server -tax=0.06

SEE ALSO:
  - config/config.go: Flag and environment parsing
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa/pos-edge/api"
	"github.com/mesa/pos-edge/broadcast"
	"github.com/mesa/pos-edge/cloudsync"
	"github.com/mesa/pos-edge/config"
	"github.com/mesa/pos-edge/ledger"
	"github.com/mesa/pos-edge/ordersync"
	"github.com/mesa/pos-edge/store/sqlite"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	hub := broadcast.NewHub(cfg.HubBuffer)
	manager := ledger.NewManager(store, store, hub, logger,
		decimal.NewFromFloat(cfg.TaxRate))
	syncSvc := ordersync.NewService(store, cfg.SyncCeiling, logger)

	// Cloud pusher runs only when an upstream endpoint is configured.
	pushCtx, stopPush := context.WithCancel(context.Background())
	var pushWG sync.WaitGroup
	if cfg.CloudURL != "" {
		sub := hub.Subscribe()
		pusher := cloudsync.NewPusher(store, sub, cloudsync.Options{
			CloudURL:    cfg.CloudURL,
			DeviceID:    cfg.DeviceID,
			Debounce:    cfg.PushDebounce,
			MaxAttempts: cfg.PushMaxAttempts,
		}, logger)
		pushWG.Add(1)
		go func() {
			defer pushWG.Done()
			pusher.Run(pushCtx)
		}()
	}

	handler := api.NewHandler(manager, store, syncSvc, store, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath),
			zap.Bool("cloud_sync", cfg.CloudURL != ""),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	stopPush()
	pushWG.Wait()

	logger.Info("server stopped")
}
