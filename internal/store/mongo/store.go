// Package mongo implements the document store over MongoDB: collections,
// resources, chunks, feedback docs, eval cases/runs, adapter snapshots and
// search analytics.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Mongo collection names.
const (
	colCollections = "collections"
	colResources   = "resources"
	colChunks      = "chunks"
	colFeedback    = "feedback"
	colEvalCases   = "eval_cases"
	colEvalRuns    = "eval_runs"
	colAdapters    = "adapters"
	colAnalytics   = "search_analytics"
)

// Config configures the store.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		URI:      "mongodb://localhost:27017",
		Database: "hippocampus",
		Timeout:  10 * time.Second,
	}
}

// Store wraps a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logrus.Logger
}

// NewStore connects to MongoDB and verifies the connection.
func NewStore(ctx context.Context, config *Config, logger *logrus.Logger) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(config.URI).
		SetTimeout(config.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.WithField("database", config.Database).Info("Connected to MongoDB")

	return &Store{
		client: client,
		db:     client.Database(config.Database),
		logger: logger,
	}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
