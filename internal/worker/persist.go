package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

// ChunkStore is the document-store surface the mongo persist worker needs.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunks(ctx context.Context, resourceID string) error
}

// MongoPersistWorker drains persist events into the document store.
type MongoPersistWorker struct {
	chunks ChunkStore
	broker messaging.Broker
	queue  string
	logger *logrus.Logger
}

// NewMongoPersistWorker wires the document-store sink.
func NewMongoPersistWorker(chunks ChunkStore, broker messaging.Broker, queue string, logger *logrus.Logger) *MongoPersistWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &MongoPersistWorker{chunks: chunks, broker: broker, queue: queue, logger: logger}
}

// Run consumes the sink queue until ctx ends.
func (w *MongoPersistWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.queue, w.Handle)
}

// Handle processes one persist event.
func (w *MongoPersistWorker) Handle(ctx context.Context, body []byte) error {
	var event models.PersistEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed persist event: %w", err)
	}

	switch event.Event {
	case models.PersistUpsert:
		return w.chunks.UpsertChunks(ctx, event.Chunks)
	case models.PersistDelete:
		return w.chunks.DeleteChunks(ctx, event.ResourceID)
	default:
		return fmt.Errorf("unknown persist event %q", event.Event)
	}
}

// VectorPersistWorker drains persist events into one vector store region.
type VectorPersistWorker struct {
	store  vectorstore.Store
	broker messaging.Broker
	queue  string
	logger *logrus.Logger
}

// NewVectorPersistWorker wires a vector-store sink; each region consumes
// its own queue so a slow region cannot block the others.
func NewVectorPersistWorker(store vectorstore.Store, broker messaging.Broker, queue string, logger *logrus.Logger) *VectorPersistWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &VectorPersistWorker{store: store, broker: broker, queue: queue, logger: logger}
}

// Run consumes the sink queue until ctx ends.
func (w *VectorPersistWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.queue, w.Handle)
}

// Handle processes one persist event.
func (w *VectorPersistWorker) Handle(ctx context.Context, body []byte) error {
	var event models.PersistEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed persist event: %w", err)
	}

	switch event.Event {
	case models.PersistUpsert:
		return w.upsert(ctx, event)
	case models.PersistDelete:
		return w.store.DeleteByFilter(ctx, event.CollectionID, &vectorstore.Filter{ResourceID: event.ResourceID})
	default:
		return fmt.Errorf("unknown persist event %q", event.Event)
	}
}

func (w *VectorPersistWorker) upsert(ctx context.Context, event models.PersistEvent) error {
	if len(event.Chunks) == 0 {
		return nil
	}

	first := event.Chunks[0]
	schema := vectorstore.Schema{
		DenseDim:  len(first.Vector),
		HasSparse: first.SparseVector != nil,
		HasRerank: first.RerankVector != nil,
	}
	if schema.HasRerank && len(first.RerankVector) > 0 {
		schema.RerankDim = len(first.RerankVector[0])
	}
	if err := w.store.EnsureCollection(ctx, event.CollectionID, schema); err != nil {
		return err
	}

	points := make([]vectorstore.Point, len(event.Chunks))
	for i, c := range event.Chunks {
		points[i] = vectorstore.Point{
			ID:     c.ID,
			Dense:  c.Vector,
			Sparse: c.SparseVector,
			Rerank: c.RerankVector,
			Payload: vectorstore.Payload{
				ResourceID:   c.ResourceID,
				CollectionID: c.CollectionID,
				OwnerID:      c.OwnerID,
				Content:      c.Data,
				Metadata:     c.Metadata,
			},
		}
	}
	return w.store.Upsert(ctx, event.CollectionID, points)
}
