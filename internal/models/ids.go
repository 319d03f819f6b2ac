package models

import (
	"crypto/md5" // #nosec G501 - id derivation, not security
	"encoding/hex"
	"fmt"
)

// hashUUID formats an md5 digest as an 8-4-4-4-12 UUID string. The exact
// derivation is load-bearing: it is what makes re-ingestion of the same
// content land on the same vector-store point across processes.
func hashUUID(input string) string {
	sum := md5.Sum([]byte(input)) // #nosec G401
	h := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

// ChunkPointID derives the content-addressed vector-store id for a chunk.
// Same content under the same ownership always maps to the same id.
func ChunkPointID(collectionID, ownerID, data, vectorSource string) string {
	return hashUUID(collectionID + ":" + ownerID + ":" + data + vectorSource)
}

// FeedbackID derives the content-addressed id for a feedback record.
func FeedbackID(collectionID, ownerID, query string) string {
	return hashUUID(collectionID + ":" + ownerID + ":" + query)
}

// FeedbackCollection names the vector collection holding feedback query
// embeddings for a collection.
func FeedbackCollection(collectionID string) string {
	return "feedback_" + collectionID
}
