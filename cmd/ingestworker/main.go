// The ingestworker binary consumes the ingest queue and drives the
// load → chunk → persist pipeline, one message at a time.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/config"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/loader"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging/rabbitmq"
	"github.com/Walkover-Web-Solution/hippocampus/internal/processor"
	mongostore "github.com/Walkover-Web-Solution/hippocampus/internal/store/mongo"
	"github.com/Walkover-Web-Solution/hippocampus/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := mongostore.NewStore(ctx, &mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() { _ = store.Close(context.Background()) }()

	redisCache := cache.NewRedisCache(&cache.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		SettingsTTL: cfg.Redis.SettingsTTL,
	})
	defer func() { _ = redisCache.Close() }()

	broker := rabbitmq.NewBroker(&rabbitmq.Config{
		URI:      cfg.Broker.URI,
		Prefetch: cfg.Broker.Prefetch,
	}, log)
	if err := broker.Connect(); err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer func() { _ = broker.Close() }()

	encoder := embedding.NewClient(&embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, log)

	settings := cache.NewCachedSettings(redisCache, store, log)
	proc := processor.NewProcessor(encoder, broker, cfg.Broker.ChunkExchange, log)
	contentLoader := loader.NewLoader(nil, log)

	ingest := worker.NewIngestWorker(store, settings, contentLoader, proc, broker,
		cfg.Broker.IngestQueue, cfg.Broker.RealtimeChannel, log)

	// Periodic re-load of URL-backed resources; unchanged sources short-
	// circuit on the content hash.
	sync := worker.NewSyncJob(store, broker, cfg.Broker.IngestQueue, 0, 0, log)
	go func() { _ = sync.Run(ctx) }()

	log.WithField("queue", cfg.Broker.IngestQueue).Info("Ingestion worker starting")
	if err := ingest.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Ingestion worker stopped")
	}
}
