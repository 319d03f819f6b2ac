// Package worker wires the broker consumers: ingestion, persistence,
// feedback and analytics.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/loader"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/processor"
)

// ResourceStore is the document-store surface the ingestion worker needs.
type ResourceStore interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	SetResourceStatus(ctx context.Context, id string, status models.ResourceStatus, message string) error
	SetResourceContent(ctx context.Context, id, content, hash string) error
}

// SettingsProvider resolves collection settings.
type SettingsProvider interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
}

// ContentLoader fetches resource content from a URL.
type ContentLoader interface {
	Load(ctx context.Context, url string) (string, error)
}

// IngestWorker drives the load → chunk → persist pipeline for one
// resource per message.
type IngestWorker struct {
	resources       ResourceStore
	settings        SettingsProvider
	loader          ContentLoader
	processor       *processor.Processor
	broker          messaging.Broker
	ingestQueue     string
	realtimeChannel string
	logger          *logrus.Logger
}

// NewIngestWorker wires the ingestion consumer.
func NewIngestWorker(
	resources ResourceStore,
	settings SettingsProvider,
	contentLoader ContentLoader,
	proc *processor.Processor,
	broker messaging.Broker,
	ingestQueue, realtimeChannel string,
	logger *logrus.Logger,
) *IngestWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &IngestWorker{
		resources:       resources,
		settings:        settings,
		loader:          contentLoader,
		processor:       proc,
		broker:          broker,
		ingestQueue:     ingestQueue,
		realtimeChannel: realtimeChannel,
		logger:          logger,
	}
}

// Run consumes the ingest queue until ctx ends.
func (w *IngestWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.ingestQueue, w.Handle)
}

// Handle processes one ingest event. Any error after the event is decoded
// and carries a resourceId marks the resource status=error before
// propagating; the broker routes the message to the
// dead-letter queue and acks the original.
func (w *IngestWorker) Handle(ctx context.Context, body []byte) error {
	var event models.IngestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed ingest event: %w", err)
	}
	if event.Data.ResourceID == "" {
		return fmt.Errorf("ingest event missing resourceId")
	}

	w.logger.WithFields(logrus.Fields{
		"event":    event.Event,
		"resource": event.Data.ResourceID,
	}).Info("Processing ingest event")

	var err error
	switch event.Event {
	case models.EventLoad:
		err = w.handleLoad(ctx, event)
	case models.EventChunk:
		err = w.handleChunk(ctx, event)
	case models.EventDelete:
		err = w.handleDelete(ctx, event)
	case models.EventUpdate:
		// Placeholder for visibility changes; republish status only.
		w.publishStatus(ctx, event.Data, "", "")
	default:
		err = fmt.Errorf("unknown ingest event %q", event.Event)
	}

	if err != nil {
		if serr := w.resources.SetResourceStatus(ctx, event.Data.ResourceID, models.StatusError, err.Error()); serr != nil {
			w.logger.WithError(serr).Warn("Failed to record error status")
		}
		w.publishStatus(ctx, event.Data, models.StatusError, err.Error())
		return err
	}
	return nil
}

// handleLoad fetches content. An unchanged content hash skips straight to
// the chunked state; new content moves the resource to loaded and queues
// the chunk stage.
func (w *IngestWorker) handleLoad(ctx context.Context, event models.IngestEvent) error {
	resource, err := w.resources.GetResource(ctx, event.Data.ResourceID)
	if err != nil {
		return err
	}

	url := event.Data.URL
	if url == "" {
		url = resource.URL
	}

	content, err := w.loader.Load(ctx, url)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	hash := loader.ContentHash(content)
	if hash == resource.ContentHash && resource.ContentHash != "" {
		// Source unchanged since the last ingest; nothing to re-chunk.
		if err := w.resources.SetResourceStatus(ctx, resource.ID, models.StatusChunked, ""); err != nil {
			return err
		}
		w.publishStatus(ctx, event.Data, models.StatusChunked, "content unchanged")
		return nil
	}

	if err := w.resources.SetResourceContent(ctx, resource.ID, content, hash); err != nil {
		return err
	}
	if err := w.resources.SetResourceStatus(ctx, resource.ID, models.StatusLoaded, ""); err != nil {
		return err
	}
	w.publishStatus(ctx, event.Data, models.StatusLoaded, "")

	// Follow-up only after this stage is fully recorded, preserving the
	// load -> chunk ordering.
	next := models.IngestEvent{
		Version: models.EventVersion,
		Event:   models.EventChunk,
		Data:    event.Data,
	}
	return w.broker.Publish(ctx, w.ingestQueue, next)
}

// handleChunk runs chunk → encode → store for the resource.
func (w *IngestWorker) handleChunk(ctx context.Context, event models.IngestEvent) error {
	resource, err := w.resources.GetResource(ctx, event.Data.ResourceID)
	if err != nil {
		return err
	}
	if resource.Content == "" {
		return fmt.Errorf("resource %s has no content to chunk", resource.ID)
	}

	collection, err := w.settings.GetCollection(ctx, resource.CollectionID)
	if err != nil {
		return err
	}

	doc := w.processor.NewDoc(resource, collection.Settings).
		Chunk(ctx).
		Encode(ctx).
		Store(ctx)
	if doc.Err() != nil {
		return doc.Err()
	}

	if err := w.resources.SetResourceStatus(ctx, resource.ID, models.StatusChunked, ""); err != nil {
		return err
	}
	w.publishStatus(ctx, event.Data, models.StatusChunked, "")
	return nil
}

// handleDelete emits the delete persist event purging the stores.
func (w *IngestWorker) handleDelete(ctx context.Context, event models.IngestEvent) error {
	resource, err := w.resources.GetResource(ctx, event.Data.ResourceID)
	if err != nil {
		// The record may already be soft-deleted; purge by id regardless.
		resource = &models.Resource{
			ID:           event.Data.ResourceID,
			CollectionID: event.Data.CollectionID,
			OwnerID:      event.Data.OwnerID,
		}
	}

	if doc := w.processor.NewDoc(resource, models.CollectionSettings{}).Delete(ctx); doc.Err() != nil {
		return doc.Err()
	}

	if err := w.resources.SetResourceStatus(ctx, event.Data.ResourceID, models.StatusDeleted, ""); err != nil {
		w.logger.WithError(err).Debug("Could not update status of deleted resource")
	}
	w.publishStatus(ctx, event.Data, models.StatusDeleted, "")
	return nil
}

// publishStatus emits a realtime status message; failures are logged only.
func (w *IngestWorker) publishStatus(ctx context.Context, data models.IngestEventData, status models.ResourceStatus, message string) {
	msg := models.StatusMessage{
		ResourceID:   data.ResourceID,
		CollectionID: data.CollectionID,
		Status:       status,
		Message:      message,
	}
	if err := w.broker.Publish(ctx, w.realtimeChannel, msg); err != nil {
		w.logger.WithError(err).Debug("Failed to publish status message")
	}
}
