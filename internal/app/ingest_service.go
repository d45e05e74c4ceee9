package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tutorat/internal/chunker"
	"tutorat/internal/config"
	"tutorat/internal/metrics"
	"tutorat/internal/model"
)

// IngestError records one failure inside a run without aborting it.
type IngestError struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"` // -1 for document-level failures
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// IngestReport aggregates a pipeline run. Counts are per document.
type IngestReport struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Inserted      int           `json:"inserted"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	ChunksIndexed int           `json:"chunks_indexed"`
	Errors        []IngestError `json:"errors"`
}

// IngestService turns registry documents into indexed points. It runs as an
// offline batch job, never on the serving path.
type IngestService struct {
	docs     DocumentStore
	chunker  *chunker.Chunker
	embedder Embedder
	index    VectorIndex
	cache    ResultCache

	batchSize   int
	concurrency int
	maxRetries  int
	limiter     *rate.Limiter
}

func NewIngestService(
	docs DocumentStore,
	ck *chunker.Chunker,
	embedder Embedder,
	index VectorIndex,
	cache ResultCache,
	cfg config.IngestConfig,
) *IngestService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	ratePerSec := cfg.EmbedRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 6
	}
	return &IngestService{
		docs:        docs,
		chunker:     ck,
		embedder:    embedder,
		index:       index,
		cache:       cache,
		batchSize:   batchSize,
		concurrency: concurrency,
		maxRetries:  maxRetries,
		// Keep a quarter of the provider's rate budget in reserve for the
		// serving path, which shares the same account.
		limiter: rate.NewLimiter(rate.Limit(ratePerSec*0.75), 1),
	}
}

// Run ingests the given documents with bounded parallelism. A bad document
// never aborts the run; its failures land in the report.
func (s *IngestService) Run(ctx context.Context, docs []model.Document) *IngestReport {
	report := &IngestReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	if err := s.index.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		report.Errors = append(report.Errors, IngestError{
			ChunkIndex: -1, Stage: "collection", Message: err.Error(),
		})
		return report
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			outcome, chunks, errs := s.ingestOne(ctx, &doc, false)
			metrics.DocumentsIngested.WithLabelValues(outcome).Inc()
			mu.Lock()
			defer mu.Unlock()
			report.ChunksIndexed += chunks
			report.Errors = append(report.Errors, errs...)
			switch outcome {
			case "inserted":
				report.Inserted++
			case "updated":
				report.Updated++
			case "skipped":
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("ingest run %s: inserted=%d updated=%d skipped=%d chunks=%d errors=%d",
		report.RunID, report.Inserted, report.Updated, report.Skipped,
		report.ChunksIndexed, len(report.Errors))
	return report
}

// RunFromRegistry ingests every document in the registry.
func (s *IngestService) RunFromRegistry(ctx context.Context) (*IngestReport, error) {
	docs, err := s.docs.ListAll()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, docs), nil
}

// ReindexDocument drops every point of the document and ingests it afresh.
// This is the only path that removes stale points, so it also busts the
// result cache.
func (s *IngestService) ReindexDocument(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if err := s.index.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		return err
	}
	if err := s.withRetry(ctx, func() error {
		return s.index.DeleteByDocument(ctx, documentID)
	}); err != nil {
		return fmt.Errorf("delete points for document %s failed: %w", documentID, err)
	}

	outcome, _, errs := s.ingestOne(ctx, doc, true)
	metrics.DocumentsIngested.WithLabelValues(outcome).Inc()

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			log.Printf("invalidate search cache after reindex failed: %v", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("reindex of %s finished with %d errors, first: %s",
			documentID, len(errs), errs[0].Message)
	}
	return nil
}

// ingestOne processes a single document: validate, chunk, embed, upsert.
// force bypasses the unchanged-content skip, used by reindex.
func (s *IngestService) ingestOne(ctx context.Context, doc *model.Document, force bool) (outcome string, chunkCount int, errs []IngestError) {
	if err := doc.Validate(); err != nil {
		return "error", 0, []IngestError{{
			DocumentID: doc.ID, ChunkIndex: -1, Stage: "validate", Message: err.Error(),
		}}
	}

	hash := contentHash(doc.Content)
	if !force && doc.IndexedAt != nil && doc.ContentHash == hash {
		return "skipped", 0, nil
	}

	chunks := s.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return "skipped", 0, nil
	}

	indexedAt := time.Now().UTC()
	points, embedErrs := s.embedChunks(ctx, doc, chunks, indexedAt)
	errs = append(errs, embedErrs...)

	if len(points) > 0 {
		if err := s.withRetry(ctx, func() error {
			return s.index.UpsertPoints(ctx, points)
		}); err != nil {
			errs = append(errs, IngestError{
				DocumentID: doc.ID, ChunkIndex: -1, Stage: "upsert", Message: err.Error(),
			})
			return "error", 0, errs
		}
		metrics.ChunksUpserted.Add(float64(len(points)))
	}

	if len(errs) == 0 {
		// Only a fully clean document is marked indexed; a partial one gets
		// retried by the next run.
		if err := s.docs.MarkIndexed(doc.ID, hash, indexedAt); err != nil {
			errs = append(errs, IngestError{
				DocumentID: doc.ID, ChunkIndex: -1, Stage: "registry", Message: err.Error(),
			})
		}
	}

	if doc.IndexedAt == nil {
		return "inserted", len(points), errs
	}
	return "updated", len(points), errs
}

// embedChunks embeds in provider-sized batches behind the rate limiter. A
// failing batch is retried whole, then chunk by chunk; chunks that still fail
// are recorded and dropped while the rest of the document continues.
func (s *IngestService) embedChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk, indexedAt time.Time) ([]model.IndexedPoint, []IngestError) {
	var points []model.IndexedPoint
	var errs []IngestError

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		var vectors [][]float32
		err := s.withRetry(ctx, func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			var embedErr error
			vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if err == nil {
			for i, ch := range batch {
				points = append(points, model.NewPoint(doc, ch, vectors[i], indexedAt))
			}
			continue
		}

		log.Printf("embed batch for document %s failed after retries, falling back to per-chunk: %v", doc.ID, err)
		for _, ch := range batch {
			var vec []float32
			chunkErr := s.withRetry(ctx, func() error {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
				var embedErr error
				vec, embedErr = s.embedder.Embed(ctx, ch.Content)
				return embedErr
			})
			if chunkErr != nil {
				errs = append(errs, IngestError{
					DocumentID: doc.ID, ChunkIndex: ch.Index, Stage: "embed", Message: chunkErr.Error(),
				})
				continue
			}
			points = append(points, model.NewPoint(doc, ch, vec, indexedAt))
		}
	}
	return points, errs
}

// withRetry runs op up to maxRetries times with exponential backoff.
func (s *IngestService) withRetry(ctx context.Context, op func() error) error {
	backoff := 500 * time.Millisecond
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || attempt >= s.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func contentHash(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
