// The feedbackworker binary consumes feedback votes and the analytics
// stream: votes update feedback docs and train the adapter; analytics
// events are recorded in the document store.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Walkover-Web-Solution/hippocampus/internal/adapter"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/config"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/feedback"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging/rabbitmq"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	mongostore "github.com/Walkover-Web-Solution/hippocampus/internal/store/mongo"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore/qdrant"
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

	vectors, err := qdrant.NewClient(&qdrant.Config{
		URL:     cfg.Qdrant.URL,
		APIKey:  cfg.Qdrant.APIKey,
		Timeout: cfg.Qdrant.Timeout,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build Qdrant client")
	}

	encoder := embedding.NewClient(&embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, log)

	adapterStore, err := buildAdapterStore(cfg, store)
	if err != nil {
		log.WithError(err).Fatal("Failed to build adapter store")
	}
	adapters := adapter.NewService(adapterStore, log)

	settings := cache.NewCachedSettings(redisCache, store, log)
	service := feedback.NewService(settings, encoder, vectors, store, adapters, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("queue", cfg.Broker.FeedbackQueue).Info("Feedback worker starting")
		return worker.NewFeedbackWorker(service, broker, cfg.Broker.FeedbackQueue, log).Run(gctx)
	})
	g.Go(func() error {
		log.WithField("queue", cfg.Broker.AnalyticsQueue).Info("Analytics worker starting")
		return worker.NewAnalyticsWorker(store, broker, cfg.Broker.AnalyticsQueue, log).Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Worker stopped")
	}
}

func buildAdapterStore(cfg *config.Config, store *mongostore.Store) (adapter.Store, error) {
	if cfg.Adapter.UseMongo {
		return mongoAdapterStore{store}, nil
	}
	return adapter.NewFileStore(cfg.Adapter.StoragePath)
}

type mongoAdapterStore struct {
	store *mongostore.Store
}

func (m mongoAdapterStore) Save(ctx context.Context, record *models.AdapterRecord) error {
	return m.store.SaveAdapter(ctx, record)
}

func (m mongoAdapterStore) Load(ctx context.Context, collectionID string) (*models.AdapterRecord, error) {
	return m.store.LoadAdapter(ctx, collectionID)
}

func (m mongoAdapterStore) Delete(ctx context.Context, collectionID string) error {
	return m.store.DeleteAdapter(ctx, collectionID)
}
