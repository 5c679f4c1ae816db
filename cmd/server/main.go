package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spacesedan/reviewradar/config"
	"github.com/spacesedan/reviewradar/internal/access"
	"github.com/spacesedan/reviewradar/internal/clients"
	"github.com/spacesedan/reviewradar/internal/db"
	"github.com/spacesedan/reviewradar/internal/logging"
	"github.com/spacesedan/reviewradar/internal/monitoring"
	"github.com/spacesedan/reviewradar/internal/review"
	"github.com/spacesedan/reviewradar/internal/sentiment"
	"github.com/spacesedan/reviewradar/internal/server"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients.InitValkey()
	defer clients.CloseValkey()
	db.InitDynamoDB()

	analyzerHealthy := &atomic.Bool{}
	analyzerHealthy.Store(true)
	go monitoring.MonitorAnalyzerHealth(ctx, analyzerHealthy)

	store := db.NewStore()
	valkey := clients.GetValkeyClient()
	classifier := sentiment.NewHybridClassifier(clients.GetAnalyzerClient(), analyzerHealthy)

	srv := server.New(server.Deps{
		Gate:       access.NewGate(store),
		Verifier:   access.NewVerifier(clients.GetGumroadClient(), store),
		Fetcher:    review.DefaultFetcher(),
		Aggregator: review.NewAggregator(classifier),
		History:    store,
		Sessions:   valkey,
		Locks:      valkey,
		Cache:      valkey,
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("[Main] Listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[Main] Server failed",
				slog.String("error", err.Error()))
			stopChan <- os.Interrupt
		}
	}()

	<-stopChan
	slog.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Main] Shutdown failed",
			slog.String("error", err.Error()))
	}
}
