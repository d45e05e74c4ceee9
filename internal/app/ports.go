package app

import (
	"context"
	"errors"
	"time"

	"tutorat/internal/model"
	"tutorat/internal/platform/qdrant"
)

var (
	ErrDocumentNotFound = errors.New("curriculum document not found")
	ErrInvalidInput     = errors.New("invalid input")
)

// Embedder converts text into fixed-dimension vectors. Ingestion and retrieval
// must share one implementation so both sides live in the same embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorIndex is the persisted point store.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dimension int) error
	UpsertPoints(ctx context.Context, points []model.IndexedPoint) error
	Query(ctx context.Context, vector []float32, level, subject string, limit int) ([]model.SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Health(ctx context.Context) bool
	CollectionStats(ctx context.Context) (*qdrant.Stats, error)
}

// ResultCache is the TTL store for retrieval results. Any backend offering
// get/set/expire works; the Redis implementation lives in internal/cache.
type ResultCache interface {
	Get(ctx context.Context, q model.Query) (*model.RetrievalResult, bool, error)
	Set(ctx context.Context, q model.Query, result *model.RetrievalResult) error
	InvalidateAll(ctx context.Context) error
}

// DocumentStore is the slice of the registry the pipeline needs.
type DocumentStore interface {
	ListAll() ([]model.Document, error)
	GetByID(id string) (*model.Document, error)
	MarkIndexed(id, contentHash string, at time.Time) error
}
