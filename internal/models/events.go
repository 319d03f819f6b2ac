package models

import "time"

// EventVersion is the current wire schema version for broker events.
const EventVersion = "1"

// Ingest event kinds consumed from the rag queue.
const (
	EventLoad   = "load"
	EventChunk  = "chunk"
	EventUpdate = "update"
	EventDelete = "delete"
)

// IngestEvent drives one stage of the ingestion pipeline for a resource.
type IngestEvent struct {
	Version string          `json:"version"`
	Event   string          `json:"event"`
	Data    IngestEventData `json:"data"`
}

// IngestEventData carries the resource being processed.
type IngestEventData struct {
	ResourceID   string `json:"resourceId"`
	CollectionID string `json:"collectionId"`
	OwnerID      string `json:"ownerId,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Persist event kinds consumed by the storage workers.
const (
	PersistUpsert = "upsert"
	PersistDelete = "delete"
)

// PersistEvent fans out chunk writes to the document store and the vector
// store regions. A delete event carries only the resource filter.
type PersistEvent struct {
	Version      string  `json:"version"`
	Event        string  `json:"event"`
	CollectionID string  `json:"collectionId"`
	OwnerID      string  `json:"ownerId"`
	ResourceID   string  `json:"resourceId"`
	Chunks       []Chunk `json:"chunks,omitempty"`
}

// Feedback actions accepted on the vote endpoints.
const (
	ActionUpvote   = "upvote"
	ActionDownvote = "downvote"
)

// FeedbackEvent is one up/down vote on a retrieved chunk.
type FeedbackEvent struct {
	Version      string `json:"version"`
	Query        string `json:"query"`
	ChunkID      string `json:"chunkId"`
	ResourceID   string `json:"resourceId"`
	Action       string `json:"action"`
	CollectionID string `json:"collectionId"`
	OwnerID      string `json:"ownerId"`
}

// AnalyticsEvent records one served search.
type AnalyticsEvent struct {
	ID           string    `json:"id" bson:"_id"`
	CollectionID string    `json:"collectionId" bson:"collectionId"`
	OwnerID      string    `json:"ownerId" bson:"ownerId"`
	Query        string    `json:"query" bson:"query"`
	ResponseMS   int64     `json:"rt_ms" bson:"rt_ms"`
	Timestamp    time.Time `json:"ts" bson:"ts"`
}

// StatusMessage is published on the realtime resource channel after every
// ingestion stage.
type StatusMessage struct {
	ResourceID   string         `json:"resourceId"`
	CollectionID string         `json:"collectionId"`
	Status       ResourceStatus `json:"status"`
	Message      string         `json:"message,omitempty"`
}
