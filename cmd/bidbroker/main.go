package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gavelworks/gavel/internal/broker"
	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/config"
	"github.com/gavelworks/gavel/internal/counter"
	"github.com/gavelworks/gavel/internal/envelope"
	"github.com/gavelworks/gavel/internal/identity"
	"github.com/gavelworks/gavel/internal/logging"
)

func main() {
	log := logging.NewDefault("bidbroker")
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counters, err := counter.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer counters.Close()
	log.Info(ctx, "connected to redis", "addr", cfg.RedisAddr)

	specs := []bus.QueueSpec{
		{Name: cfg.InQueue, URL: cfg.InQueueURL, Consume: true},
		{Name: cfg.OutQueue, URL: cfg.OutQueueURL},
	}
	b, err := bus.Connect(ctx, specs, bus.DefaultRetryPolicy(), log)
	if err != nil {
		log.Error(ctx, "failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// Phase 1 only checks token signature, shape and age, so the broker
	// needs no account store.
	tokens := identity.NewService(nil,
		[]byte(cfg.Secrets.UserTokenSecret),
		[]byte(cfg.Secrets.PasswordSecret),
		cfg.Secrets.TokenTTL,
	)

	brk := broker.New(b, counters,
		envelope.NewCodec([]byte(cfg.Secrets.WebBidSecret)),
		envelope.NewCodec([]byte(cfg.Secrets.BidBrokerSecret)),
		tokens, cfg.OutQueue, log,
	)

	go func() {
		log.Info(ctx, "consuming bid submissions", "queue", cfg.InQueue)
		if err := brk.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "broker stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	cancel()
}

// Config holds the broker's connection settings.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	InQueue     string
	InQueueURL  string
	OutQueue    string
	OutQueueURL string

	Secrets config.Secrets
}

func loadConfig() *Config {
	return &Config{
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		InQueue:       config.GetEnv("SUBMISSION_QUEUE", "bigpipe"),
		InQueueURL:    config.GetEnv("SUBMISSION_QUEUE_URL", "nats://localhost:4222"),
		OutQueue:      config.GetEnv("ATTESTED_QUEUE", "smallpipe"),
		OutQueueURL:   config.GetEnv("ATTESTED_QUEUE_URL", "nats://localhost:4222"),
		Secrets:       config.LoadSecrets(),
	}
}
