// Command ingestd is the ciNet ingestion core's primary server process: it
// wires config, logging, storage, the subscription hub, the TCP ingest
// listener, and the websocket subscriber server together and runs them
// concurrently until a termination signal arrives. Grounded on
// banshee-data-velocity.report's root main.go: signal.NotifyContext for
// graceful shutdown, a sync.WaitGroup per goroutine, each goroutine logging
// its own termination.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cinet-track/ingest/internal/config"
	"github.com/cinet-track/ingest/internal/hub"
	"github.com/cinet-track/ingest/internal/ingest"
	"github.com/cinet-track/ingest/internal/logging"
	"github.com/cinet-track/ingest/internal/store/sqlitestore"
	"github.com/cinet-track/ingest/internal/subscriber"
	"github.com/cinet-track/ingest/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	flushLogs, err := logging.Init(cfg.Production, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer flushLogs()

	logging.L.Infow("starting ingestd",
		"version", version.Version, "git_sha", version.GitSHA, "build_time", version.BuildTime,
		"config", cfg.Redacted())

	st, err := sqlitestore.Open(cfg.DatabaseURL)
	if err != nil {
		logging.L.Fatalw("failed to open database", "error", err, "path", cfg.DatabaseURL)
	}
	defer st.Close()

	h := hub.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// ciNet TCP ingest listener.
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener := ingest.NewListener(cfg.CinetAddr(), st, h)
		if err := listener.Run(ctx); err != nil {
			logging.L.Errorw("ingest listener terminated with error", "error", err)
		}
		logging.L.Info("ingest listener stopped")
	}()

	// Subscriber websocket server.
	wg.Add(1)
	go func() {
		defer wg.Done()

		sub := subscriber.New(h, cfg.JWTSecret)
		mux := http.NewServeMux()
		mux.Handle("/ws", sub.Handler())

		server := &http.Server{Addr: cfg.SubAddr(), Handler: mux}

		go func() {
			logging.L.Infow("subscriber server listening", "addr", cfg.SubAddr())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.L.Errorw("subscriber server failed", "error", err)
			}
		}()

		<-ctx.Done()
		logging.L.Info("shutting down subscriber server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.L.Errorw("subscriber server shutdown error", "error", err)
		}
		logging.L.Info("subscriber server stopped")
	}()

	wg.Wait()
	logging.L.Info("graceful shutdown complete")
}
