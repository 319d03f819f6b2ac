// The persistworker binary consumes one persist queue and writes to its
// backend: the document store for mongo-sync, a vector store region for
// the qdrant-*-sync queues. Each backend runs as its own process so a
// slow region cannot block the others.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/config"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging/rabbitmq"
	mongostore "github.com/Walkover-Web-Solution/hippocampus/internal/store/mongo"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore/qdrant"
	"github.com/Walkover-Web-Solution/hippocampus/internal/worker"
)

func main() {
	sink := flag.String("sink", "mongo-sync", "persist queue to consume (mongo-sync, qdrant-usa-sync, qdrant-india-sync)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := rabbitmq.NewBroker(&rabbitmq.Config{
		URI:      cfg.Broker.URI,
		Prefetch: cfg.Broker.Prefetch,
	}, log)
	if err := broker.Connect(); err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer func() { _ = broker.Close() }()

	// Persist queues receive the chunk exchange fan-out.
	if err := broker.BindQueue(*sink, cfg.Broker.ChunkExchange); err != nil {
		log.WithError(err).Fatal("Failed to bind persist queue")
	}

	var err error
	switch *sink {
	case "mongo-sync":
		var store *mongostore.Store
		store, err = mongostore.NewStore(ctx, &mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to MongoDB")
		}
		defer func() { _ = store.Close(context.Background()) }()

		log.WithField("queue", *sink).Info("Document-store persist worker starting")
		err = worker.NewMongoPersistWorker(store, broker, *sink, log).Run(ctx)
	default:
		var vectors *qdrant.Client
		vectors, err = qdrant.NewClient(&qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to build Qdrant client")
		}

		log.WithField("queue", *sink).Info("Vector-store persist worker starting")
		err = worker.NewVectorPersistWorker(vectors, broker, *sink, log).Run(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Persist worker stopped")
	}
}
