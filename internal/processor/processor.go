// Package processor orchestrates the per-resource pipeline: chunk the
// content, encode the chunks and emit persist events for the storage
// workers.
package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/chunker"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// persistBatchSize bounds chunks per persist message. Chunks carrying a
// rerank matrix always go one per message; the payload is too large to
// batch safely.
const persistBatchSize = 20

// Encoder is the embedding surface the processor needs.
type Encoder interface {
	EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error)
	EncodeSparse(ctx context.Context, texts []string, model string) ([]models.SparseVector, error)
	EncodeLateInteraction(ctx context.Context, texts []string, model string) ([][][]float32, error)
}

// Processor builds Docs bound to its encoder and broker.
type Processor struct {
	encoder       Encoder
	broker        messaging.Broker
	chunkExchange string
	logger        *logrus.Logger
}

// NewProcessor creates a document processor.
func NewProcessor(encoder Encoder, broker messaging.Broker, chunkExchange string, logger *logrus.Logger) *Processor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Processor{
		encoder:       encoder,
		broker:        broker,
		chunkExchange: chunkExchange,
		logger:        logger,
	}
}

// Doc is one resource moving through chunk → encode → store. Operations
// chain; the first error short-circuits the rest and is surfaced by Err.
type Doc struct {
	p        *Processor
	resource *models.Resource
	settings models.CollectionSettings
	chunks   []models.Chunk
	err      error
}

// NewDoc wraps a resource and its collection settings.
func (p *Processor) NewDoc(resource *models.Resource, settings models.CollectionSettings) *Doc {
	return &Doc{p: p, resource: resource, settings: settings}
}

// Err returns the first error encountered in the chain.
func (d *Doc) Err() error { return d.err }

// Chunks returns the chunks produced so far.
func (d *Doc) Chunks() []models.Chunk { return d.chunks }

// Chunk splits the resource content using its resolved chunking
// parameters. Every chunk gets a stable id: content-addressed unless the
// collection keeps duplicates, in which case a random UUID.
func (d *Doc) Chunk(ctx context.Context) *Doc {
	if d.err != nil {
		return d
	}

	params := chunker.Resolve(d.settings, d.resource.Overrides)
	c := chunker.ForParams(params, d.p.encoder, d.p.logger)

	pieces, err := c.Split(ctx, d.resource.Content)
	if err != nil {
		d.err = fmt.Errorf("chunking failed: %w", err)
		return d
	}

	ownerID := d.resource.OwnerID
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}

	d.chunks = make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		id := models.ChunkPointID(d.resource.CollectionID, ownerID, piece.Text, piece.VectorSource)
		if d.settings.KeepDuplicate {
			id = uuid.New().String()
		}
		d.chunks[i] = models.Chunk{
			ID:           id,
			Data:         piece.Text,
			VectorSource: piece.VectorSource,
			ResourceID:   d.resource.ID,
			CollectionID: d.resource.CollectionID,
			OwnerID:      ownerID,
			Metadata:     piece.Metadata,
		}
	}

	d.p.logger.WithFields(logrus.Fields{
		"resource": d.resource.ID,
		"strategy": params.Strategy,
		"chunks":   len(d.chunks),
	}).Info("Resource chunked")
	return d
}

// Encode attaches the vector set configured for the collection: dense
// always, sparse and rerank when their models are set.
func (d *Doc) Encode(ctx context.Context) *Doc {
	if d.err != nil || len(d.chunks) == 0 {
		return d
	}

	texts := make([]string, len(d.chunks))
	for i := range d.chunks {
		texts[i] = d.chunks[i].EmbeddedText()
	}

	dense, err := d.p.encoder.EncodeDense(ctx, texts, d.settings.DenseModel)
	if err != nil {
		d.err = fmt.Errorf("dense encoding failed: %w", err)
		return d
	}
	for i := range d.chunks {
		d.chunks[i].Vector = dense[i]
	}

	if d.settings.SparseModel != "" {
		sparse, err := d.p.encoder.EncodeSparse(ctx, texts, d.settings.SparseModel)
		if err != nil {
			d.err = fmt.Errorf("sparse encoding failed: %w", err)
			return d
		}
		for i := range d.chunks {
			v := sparse[i]
			d.chunks[i].SparseVector = &v
		}
	}

	if d.settings.RerankerModel != "" {
		matrices, err := d.p.encoder.EncodeLateInteraction(ctx, texts, d.settings.RerankerModel)
		if err != nil {
			d.err = fmt.Errorf("late-interaction encoding failed: %w", err)
			return d
		}
		for i := range d.chunks {
			d.chunks[i].RerankVector = matrices[i]
		}
	}

	return d
}

// Store fans persist events out to the storage workers.
func (d *Doc) Store(ctx context.Context) *Doc {
	if d.err != nil || len(d.chunks) == 0 {
		return d
	}

	batchSize := persistBatchSize
	if d.settings.RerankerModel != "" {
		batchSize = 1
	}

	for start := 0; start < len(d.chunks); start += batchSize {
		end := start + batchSize
		if end > len(d.chunks) {
			end = len(d.chunks)
		}
		event := models.PersistEvent{
			Version:      models.EventVersion,
			Event:        models.PersistUpsert,
			CollectionID: d.resource.CollectionID,
			OwnerID:      d.chunks[start].OwnerID,
			ResourceID:   d.resource.ID,
			Chunks:       d.chunks[start:end],
		}
		if err := d.p.broker.PublishFanout(ctx, d.p.chunkExchange, event); err != nil {
			d.err = fmt.Errorf("failed to publish persist event: %w", err)
			return d
		}
	}

	d.p.logger.WithFields(logrus.Fields{
		"resource": d.resource.ID,
		"chunks":   len(d.chunks),
	}).Info("Persist events published")
	return d
}

// Delete emits a persist event purging the resource from the stores.
func (d *Doc) Delete(ctx context.Context) *Doc {
	if d.err != nil {
		return d
	}

	ownerID := d.resource.OwnerID
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}
	event := models.PersistEvent{
		Version:      models.EventVersion,
		Event:        models.PersistDelete,
		CollectionID: d.resource.CollectionID,
		OwnerID:      ownerID,
		ResourceID:   d.resource.ID,
	}
	if err := d.p.broker.PublishFanout(ctx, d.p.chunkExchange, event); err != nil {
		d.err = fmt.Errorf("failed to publish delete event: %w", err)
	}
	return d
}
