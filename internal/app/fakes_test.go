package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"tutorat/internal/cache"
	"tutorat/internal/model"
	"tutorat/internal/platform/qdrant"
)

// keywordVector gives deterministic, topic-separated embeddings so tests can
// exercise real similarity ordering without a provider.
func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "fraction"):
		return []float32{1, 0, 0}
	case strings.Contains(lower, "pythagore"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

type fakeEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	failSub    string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.failSub != "" && strings.Contains(text, f.failSub) {
		return nil, fmt.Errorf("provider rejected text")
	}
	return keywordVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failSub != "" && strings.Contains(t, f.failSub) {
			return nil, fmt.Errorf("provider rejected batch")
		}
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls, f.batchCalls
}

type fakeIndex struct {
	mu          sync.Mutex
	healthy     bool
	ensuredDim  int
	points      map[string]model.IndexedPoint
	queryErr    error
	upsertErr   error
	lastLevel   string
	lastSubject string
	lastLimit   int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{healthy: true, points: map[string]model.IndexedPoint{}}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, dim int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensuredDim = dim
	return nil
}

func (f *fakeIndex) UpsertPoints(_ context.Context, points []model.IndexedPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeIndex) Query(_ context.Context, vector []float32, level, subject string, limit int) ([]model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.lastLevel, f.lastSubject, f.lastLimit = level, subject, limit
	var results []model.SearchResult
	for _, p := range f.points {
		if p.Payload.Level != level || p.Payload.Subject != subject {
			continue
		}
		results = append(results, model.SearchResult{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.points {
		if p.Payload.DocumentID == documentID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeIndex) Health(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeIndex) CollectionStats(context.Context) (*qdrant.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &qdrant.Stats{PointCount: int64(len(f.points)), Status: "green"}, nil
}

func (f *fakeIndex) pointIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.points))
	for id := range f.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fakeCache implements ResultCache with the same version-stamp semantics as
// the Redis implementation. wrote signals each completed Set so tests can wait
// out the fire-and-forget write.
type fakeCache struct {
	mu      sync.Mutex
	version int
	entries map[string]*model.RetrievalResult
	wrote   chan struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: map[string]*model.RetrievalResult{},
		wrote:   make(chan struct{}, 16),
	}
}

func (f *fakeCache) key(q model.Query) string {
	return fmt.Sprintf("v%d:%s", f.version, cache.QueryFingerprint(q))
}

func (f *fakeCache) Get(_ context.Context, q model.Query) (*model.RetrievalResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.entries[f.key(q)]
	return r, ok, nil
}

func (f *fakeCache) Set(_ context.Context, q model.Query, result *model.RetrievalResult) error {
	f.mu.Lock()
	f.entries[f.key(q)] = result
	f.mu.Unlock()
	f.wrote <- struct{}{}
	return nil
}

func (f *fakeCache) InvalidateAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version++
	return nil
}

func (f *fakeCache) waitWrite(t interface{ Fatalf(string, ...any) }) {
	select {
	case <-f.wrote:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cache write")
	}
}

type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocs(docs ...*model.Document) *fakeDocs {
	f := &fakeDocs{docs: map[string]*model.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocs) ListAll() ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.docs[id])
	}
	return out, nil
}

func (f *fakeDocs) GetByID(id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (f *fakeDocs) MarkIndexed(id, contentHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.ContentHash = contentHash
		d.IndexedAt = &at
	}
	return nil
}
