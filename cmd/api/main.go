// The api binary serves the HTTP front-end: collection and resource CRUD,
// search, feedback voting and evaluation.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/adapter"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/config"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/eval"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging/rabbitmq"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
	"github.com/Walkover-Web-Solution/hippocampus/internal/server"
	mongostore "github.com/Walkover-Web-Solution/hippocampus/internal/store/mongo"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore/qdrant"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	gin.SetMode(cfg.Server.Mode)

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
		Addr:            cfg.Redis.Addr,
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		SettingsTTL:     cfg.Redis.SettingsTTL,
		FeedbackLinkTTL: cfg.Redis.FeedbackLinkTTL,
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
	engine := query.NewEngine(settings, encoder, vectors, adapters, store, broker,
		cfg.Broker.AnalyticsQueue, log)
	evaluator := eval.NewEvaluator(store, engine, log)

	router := server.NewRouter(server.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Collection: server.NewCollectionHandler(store, settings, log),
		Resource:   server.NewResourceHandler(store, broker, cfg.Broker.IngestQueue, log),
		Search:     server.NewSearchHandler(engine, redisCache, log),
		Feedback:   server.NewFeedbackHandler(broker, redisCache, cfg.Broker.FeedbackQueue, log),
		Eval:       server.NewEvalHandler(evaluator, log),
		Logger:     log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
}

func buildAdapterStore(cfg *config.Config, store *mongostore.Store) (adapter.Store, error) {
	if cfg.Adapter.UseMongo {
		return mongoAdapterStore{store}, nil
	}
	return adapter.NewFileStore(cfg.Adapter.StoragePath)
}

// mongoAdapterStore adapts the document store to the adapter.Store
// interface.
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
