package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace seeds the deterministic point IDs. Changing it orphans every
// indexed point, so it is fixed for the lifetime of the collection.
var chunkNamespace = uuid.MustParse("7d09cf4e-30b4-4cb5-9f3a-2a2f6c1d8b11")

// Chunk is a bounded slice of a document, indexed independently.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// ChunkID derives the point ID from (documentID, index). Re-chunking the same
// document always yields the same IDs, which is what makes re-ingestion an
// idempotent upsert. The UUIDv5 form doubles as a valid Qdrant point ID.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(index))).String()
}

// PointPayload is the validated payload stored alongside each vector.
type PointPayload struct {
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Title      string    `json:"title,omitempty"`
	Level      string    `json:"level"`
	Subject    string    `json:"subject"`
	Domain     string    `json:"domain,omitempty"`
	Subdomain  string    `json:"subdomain,omitempty"`
	Source     string    `json:"source,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// IndexedPoint is what the vector store persists: deterministic ID, fixed
// dimension vector, payload.
type IndexedPoint struct {
	ID      string
	Vector  []float32
	Payload PointPayload
}

// SearchResult is a scored point returned by a similarity query.
type SearchResult struct {
	ID      string
	Score   float64
	Payload PointPayload
}

// NewPoint builds the indexed point for one chunk of a document.
func NewPoint(doc *Document, chunk Chunk, vector []float32, indexedAt time.Time) IndexedPoint {
	return IndexedPoint{
		ID:     chunk.ID,
		Vector: vector,
		Payload: PointPayload{
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Content,
			Title:      doc.Title,
			Level:      doc.Level,
			Subject:    doc.Subject,
			Domain:     doc.Domain,
			Subdomain:  doc.Subdomain,
			Source:     doc.Source,
			SourceType: doc.SourceType,
			IndexedAt:  indexedAt,
		},
	}
}
