package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gavelworks/gavel/internal/auction"
	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/config"
	"github.com/gavelworks/gavel/internal/counter"
	"github.com/gavelworks/gavel/internal/envelope"
	"github.com/gavelworks/gavel/internal/identity"
	"github.com/gavelworks/gavel/internal/ingester"
	"github.com/gavelworks/gavel/internal/logging"
)

func main() {
	log := logging.NewDefault("bidingester")
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := connectMongo(ctx, cfg.MongoURL)
	if err != nil {
		log.Error(ctx, "failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.MongoDatabase)
	log.Info(ctx, "connected to mongodb", "database", cfg.MongoDatabase)

	counters, err := counter.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer counters.Close()

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

	store := auction.NewMongoStore(db, counters)
	users := identity.NewService(identity.NewMongoAccounts(db),
		[]byte(cfg.Secrets.UserTokenSecret),
		[]byte(cfg.Secrets.PasswordSecret),
		cfg.Secrets.TokenTTL,
	)

	ing := ingester.New(b, store,
		envelope.NewCodec([]byte(cfg.Secrets.BidBrokerSecret)),
		users, cfg.OutQueue, log,
	)

	go func() {
		log.Info(ctx, "consuming attested bids", "queue", cfg.InQueue)
		if err := ing.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "ingester stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	cancel()
}

func connectMongo(ctx context.Context, url string) (*mongo.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// Config holds the ingester's connection settings.
type Config struct {
	MongoURL      string
	MongoDatabase string

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
		MongoURL:      config.GetEnv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDatabase: config.GetEnv("MONGO_DATABASE", "gavel"),
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		InQueue:       config.GetEnv("ATTESTED_QUEUE", "smallpipe"),
		InQueueURL:    config.GetEnv("ATTESTED_QUEUE_URL", "nats://localhost:4222"),
		OutQueue:      config.GetEnv("COMMITTED_QUEUE", "backpipe"),
		OutQueueURL:   config.GetEnv("COMMITTED_QUEUE_URL", "nats://localhost:4222"),
		Secrets:       config.LoadSecrets(),
	}
}
