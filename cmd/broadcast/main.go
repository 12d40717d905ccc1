package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/config"
	"github.com/gavelworks/gavel/internal/fanout"
	"github.com/gavelworks/gavel/internal/logging"
)

func main() {
	log := logging.NewDefault("broadcast")
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	specs := []bus.QueueSpec{
		{Name: cfg.InQueue, URL: cfg.InQueueURL, Consume: true},
	}
	b, err := bus.Connect(ctx, specs, bus.DefaultRetryPolicy(), log)
	if err != nil {
		log.Error(ctx, "failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	hub := fanout.NewHub(log)
	go hub.Run(ctx)
	go func() {
		log.Info(ctx, "consuming committed events", "queue", cfg.InQueue)
		if err := hub.Pump(ctx, b); err != nil && ctx.Err() == nil {
			log.Error(ctx, "event pump stopped", "error", err)
		}
	}()

	handler := fanout.NewHandler(hub, log)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.Routes(),
	}

	go func() {
		log.Info(ctx, "listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "server shutdown", "error", err)
	}
}

// Config holds the broadcast service settings.
type Config struct {
	Port       string
	InQueue    string
	InQueueURL string
}

func loadConfig() *Config {
	return &Config{
		Port:       config.GetEnv("PORT", "8081"),
		InQueue:    config.GetEnv("COMMITTED_QUEUE", "backpipe"),
		InQueueURL: config.GetEnv("COMMITTED_QUEUE_URL", "nats://localhost:4222"),
	}
}
