package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// FeedbackProcessor handles one feedback event.
type FeedbackProcessor interface {
	Process(ctx context.Context, event models.FeedbackEvent) error
}

// FeedbackWorker drains the feedback queue. Prefetch=1 on the consumer
// serializes adapter training per collection.
type FeedbackWorker struct {
	service FeedbackProcessor
	broker  messaging.Broker
	queue   string
	logger  *logrus.Logger
}

// NewFeedbackWorker wires the feedback consumer.
func NewFeedbackWorker(service FeedbackProcessor, broker messaging.Broker, queue string, logger *logrus.Logger) *FeedbackWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &FeedbackWorker{service: service, broker: broker, queue: queue, logger: logger}
}

// Run consumes the feedback queue until ctx ends.
func (w *FeedbackWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.queue, w.Handle)
}

// Handle processes one feedback event.
func (w *FeedbackWorker) Handle(ctx context.Context, body []byte) error {
	var event models.FeedbackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed feedback event: %w", err)
	}
	return w.service.Process(ctx, event)
}

// AnalyticsStore records served searches.
type AnalyticsStore interface {
	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

// AnalyticsWorker drains the analytics queue into the document store.
type AnalyticsWorker struct {
	store  AnalyticsStore
	broker messaging.Broker
	queue  string
	logger *logrus.Logger
}

// NewAnalyticsWorker wires the analytics consumer.
func NewAnalyticsWorker(store AnalyticsStore, broker messaging.Broker, queue string, logger *logrus.Logger) *AnalyticsWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalyticsWorker{store: store, broker: broker, queue: queue, logger: logger}
}

// Run consumes the analytics queue until ctx ends.
func (w *AnalyticsWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.queue, w.Handle)
}

// Handle records one analytics event.
func (w *AnalyticsWorker) Handle(ctx context.Context, body []byte) error {
	var event models.AnalyticsEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed analytics event: %w", err)
	}
	return w.store.InsertAnalyticsEvent(ctx, &event)
}
