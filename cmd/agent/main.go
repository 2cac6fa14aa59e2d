// Package main runs the offline inventory agent: it owns the durable
// action queue and reconciles it against the remote products API,
// exposing queue state to local UI clients over REST and WebSocket.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kimhsiao/inventorylite/internal/api"
	"github.com/kimhsiao/inventorylite/internal/connectivity"
	"github.com/kimhsiao/inventorylite/internal/db"
	"github.com/kimhsiao/inventorylite/internal/logging"
	"github.com/kimhsiao/inventorylite/internal/notify"
	"github.com/kimhsiao/inventorylite/internal/queue"
	"github.com/kimhsiao/inventorylite/internal/scheduler"
	syncpkg "github.com/kimhsiao/inventorylite/internal/sync"
)

func main() {
	var (
		listenAddr    = flag.String("listen", envOr("LISTEN_ADDR", "localhost:8090"), "REST/WebSocket listen address")
		dataDir       = flag.String("data-dir", envOr("DATA_DIR", "./data"), "directory for the agent database")
		apiURL        = flag.String("api-url", envOr("API_URL", "http://127.0.0.1:8000"), "remote products API base URL")
		logLevel      = flag.String("log-level", envOr("LOG_LEVEL", "info"), "minimum log level (debug, info, warn, error)")
		probeInterval = flag.Duration("probe-interval", 30*time.Second, "connectivity probe interval")
		syncInterval  = flag.Duration("sync-interval", scheduler.DefaultInterval, "background sync heartbeat interval")
		callTimeout   = flag.Duration("call-timeout", 15*time.Second, "per remote call timeout")
	)
	flag.Parse()

	logging.Init(os.Stdout, *logLevel)

	database, err := db.Open(*dataDir)
	if err != nil {
		logging.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		logging.Error("Failed to migrate database", err)
		os.Exit(1)
	}

	broker := notify.NewBroker()
	defer broker.Close()

	store := queue.NewStore(database.DB, broker)
	client := api.NewClient(*apiURL, *callTimeout)
	monitor := connectivity.NewMonitor(
		connectivity.ProberFunc(client.Ping), *probeInterval)

	cfg := syncpkg.DefaultConfig()
	cfg.CallTimeout = *callTimeout
	engine, err := syncpkg.NewEngine(store, client, monitor, broker, cfg)
	if err != nil {
		logging.Error("Failed to initialize sync engine", err)
		os.Exit(1)
	}

	// The monitor drives the engine: a pass on startup, and a pass on
	// every offline-to-online transition. The engine runs passes
	// synchronously, so trigger from a goroutine to keep probing live.
	monitor.SetSyncTrigger(func() { go engine.RequestSync() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)
	defer monitor.Stop()

	heartbeat := scheduler.NewScheduler(func() { go engine.RequestSync() }, *syncInterval)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	hub := newWSHub(broker)
	go hub.run(ctx)

	server := newServer(store, engine, monitor, hub)
	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	go func() {
		logging.Info("Agent listening", map[string]interface{}{
			"addr": *listenAddr, "api_url": *apiURL,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP shutdown failed", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
