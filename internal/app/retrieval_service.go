package app

import (
	"context"
	"log"
	"strings"
	"time"

	"tutorat/internal/chunker"
	"tutorat/internal/config"
	"tutorat/internal/metrics"
	"tutorat/internal/model"
)

// RetrievalService answers grounding queries on the request path of chat and
// deck generation. It never returns an error across its boundary: every
// failure mode collapses into a degraded Found=false result.
type RetrievalService struct {
	embedder Embedder
	index    VectorIndex
	cache    ResultCache
	gate     *AvailabilityGate
	cfg      config.RetrievalConfig
}

func NewRetrievalService(
	embedder Embedder,
	index VectorIndex,
	cache ResultCache,
	gate *AvailabilityGate,
	cfg config.RetrievalConfig,
) *RetrievalService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 10
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		cache:    cache,
		gate:     gate,
		cfg:      cfg,
	}
}

// Search runs the retrieval state machine: cache check, availability check,
// embed, filtered similarity query, score filter, context assembly, cache
// write. Every path terminates in a result.
func (s *RetrievalService) Search(ctx context.Context, q model.Query) *model.RetrievalResult {
	started := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(started).Seconds())
	}()

	q.Limit = s.clampLimit(q.Limit)
	if strings.TrimSpace(q.Text) == "" || q.Level == "" || q.Subject == "" {
		return s.finish(emptyResult(model.DegradeNone), started)
	}

	if cached, ok := s.cacheGet(ctx, q); ok {
		metrics.CacheHits.Inc()
		return cached
	}
	metrics.CacheMisses.Inc()

	if !s.gate.Available(ctx) {
		reason := model.DegradeConnectivity
		if !s.gate.Configured() {
			reason = model.DegradeConfig
		}
		return s.degrade(reason, started)
	}

	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		log.Printf("retrieval: embed query failed: %v", err)
		return s.degrade(model.DegradeEmbedding, started)
	}

	// Over-fetch so the score floor still leaves enough candidates.
	fetchLimit := q.Limit * 3
	if fetchLimit > 30 {
		fetchLimit = 30
	}
	results, err := s.index.Query(ctx, vector, q.Level, q.Subject, fetchLimit)
	if err != nil {
		log.Printf("retrieval: vector query failed: %v", err)
		return s.degrade(model.DegradeConnectivity, started)
	}

	minScore := s.cfg.MinScore
	if q.MinScoreOverride > 0 {
		minScore = q.MinScoreOverride
	}
	result := s.assemble(results, minScore, q.Limit)
	result.SearchTimeMs = time.Since(started).Milliseconds()

	s.cacheSet(q, result)
	return result
}

// assemble applies the score floor, builds the context string within the
// character budget, and derives the confidence tier.
func (s *RetrievalService) assemble(results []model.SearchResult, minScore float64, limit int) *model.RetrievalResult {
	kept := make([]model.ScoredChunk, 0, limit)
	var scoreSum float64
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		kept = append(kept, model.ScoredChunk{
			ID:      r.ID,
			Score:   r.Score,
			Content: r.Payload.Content,
			Title:   r.Payload.Title,
			Domain:  r.Payload.Domain,
		})
		scoreSum += r.Score
		if len(kept) == limit {
			break
		}
	}

	if len(kept) == 0 {
		return emptyResult(model.DegradeNone)
	}

	avg := scoreSum / float64(len(kept))
	return &model.RetrievalResult{
		Found:        true,
		Context:      s.buildContext(kept),
		Chunks:       kept,
		AverageScore: avg,
		Confidence:   s.confidence(avg),
		WellCovered:  avg >= s.cfg.GoodScore,
	}
}

// buildContext concatenates chunk passages under the character budget,
// truncating the overflowing passage at a sentence boundary.
func (s *RetrievalService) buildContext(chunks []model.ScoredChunk) string {
	budget := s.cfg.MaxContextChars
	var b strings.Builder
	for _, ch := range chunks {
		passage := ch.Content
		if ch.Title != "" {
			passage = "[" + ch.Title + "]\n" + ch.Content
		}
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		remaining := budget - b.Len() - len(sep)
		if remaining <= 0 {
			break
		}
		if len(passage) > remaining {
			// One truncated passage closes the context; packing fragments
			// after a cut passage reads worse than stopping clean.
			if truncated := chunker.SentenceTruncate(passage, remaining); truncated != "" {
				b.WriteString(sep)
				b.WriteString(truncated)
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(passage)
	}
	return b.String()
}

func (s *RetrievalService) confidence(avg float64) string {
	switch {
	case avg >= s.cfg.HighScore:
		return model.ConfidenceHigh
	case avg >= s.cfg.GoodScore:
		return model.ConfidenceGood
	case avg >= s.cfg.MinScore:
		return model.ConfidenceLow
	default:
		return model.ConfidenceNone
	}
}

func (s *RetrievalService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func (s *RetrievalService) cacheGet(ctx context.Context, q model.Query) (*model.RetrievalResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	result, ok, err := s.cache.Get(ctx, q)
	if err != nil {
		log.Printf("retrieval: cache read failed: %v", err)
		return nil, false
	}
	return result, ok
}

// cacheSet writes the result on a detached context so an aborted request can
// still populate the cache for future readers. Last write wins; values are a
// pure function of the key.
func (s *RetrievalService) cacheSet(q model.Query, result *model.RetrievalResult) {
	if s.cache == nil {
		return
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(writeCtx, q, result); err != nil {
			log.Printf("retrieval: cache write failed: %v", err)
		}
	}()
}

func (s *RetrievalService) degrade(reason model.DegradeReason, started time.Time) *model.RetrievalResult {
	metrics.DegradedSearches.WithLabelValues(string(reason)).Inc()
	return s.finish(emptyResult(reason), started)
}

func (s *RetrievalService) finish(result *model.RetrievalResult, started time.Time) *model.RetrievalResult {
	result.SearchTimeMs = time.Since(started).Milliseconds()
	return result
}

func emptyResult(reason model.DegradeReason) *model.RetrievalResult {
	return &model.RetrievalResult{
		Found:      false,
		Context:    "",
		Chunks:     []model.ScoredChunk{},
		Confidence: model.ConfidenceNone,
		Reason:     reason,
	}
}
