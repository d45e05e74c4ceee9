package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorat/internal/model"
)

type fakeKV struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redisv9.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return redisv9.NewStringResult(v, nil)
	}
	return redisv9.NewStringResult("", redisv9.Nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redisv9.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redisv9.NewStatusResult("OK", nil)
}

func (f *fakeKV) Incr(_ context.Context, key string) *redisv9.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return redisv9.NewIntResult(n, nil)
}

func TestSearchCache_RoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := NewSearchCache(kv, 30*time.Minute)
	ctx := context.Background()
	q := model.Query{Text: "les fractions", Level: "cinquieme", Subject: "mathematiques", Limit: 5}

	_, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok, "expected a miss on a cold cache")

	stored := &model.RetrievalResult{Found: true, Context: "Une fraction.", AverageScore: 0.8}
	require.NoError(t, c.Set(ctx, q, stored))

	got, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.Context, got.Context)
	assert.Equal(t, stored.AverageScore, got.AverageScore)

	for key, ttl := range kv.ttls {
		assert.Equal(t, 30*time.Minute, ttl, "key %s stored without the configured TTL", key)
	}
}

func TestSearchCache_InvalidateAll(t *testing.T) {
	kv := newFakeKV()
	c := NewSearchCache(kv, time.Hour)
	ctx := context.Background()
	q := model.Query{Text: "les fractions", Level: "cinquieme", Subject: "mathematiques", Limit: 5}

	require.NoError(t, c.Set(ctx, q, &model.RetrievalResult{Found: true, Context: "avant"}))
	require.NoError(t, c.InvalidateAll(ctx))

	_, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok, "entries written under the old version must be unreachable")

	require.NoError(t, c.Set(ctx, q, &model.RetrievalResult{Found: true, Context: "apres"}))
	got, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "apres", got.Context)
}

func TestNormalizeQueryText(t *testing.T) {
	assert.Equal(t, "comment additionner des fractions",
		NormalizeQueryText("  Comment   additionner\tdes FRACTIONS "))
	assert.Equal(t, "", NormalizeQueryText("   "))
}

func TestQueryFingerprint(t *testing.T) {
	base := model.Query{Text: "les fractions", Level: "cinquieme", Subject: "mathematiques", Limit: 5}

	t.Run("whitespace and case insensitive", func(t *testing.T) {
		other := model.Query{Text: "  Les   FRACTIONS ", Level: "Cinquieme", Subject: "mathematiques", Limit: 5}
		assert.Equal(t, QueryFingerprint(base), QueryFingerprint(other))
	})

	t.Run("different text differs", func(t *testing.T) {
		other := base
		other.Text = "le theoreme de pythagore"
		assert.NotEqual(t, QueryFingerprint(base), QueryFingerprint(other))
	})

	t.Run("different filter differs", func(t *testing.T) {
		other := base
		other.Level = "quatrieme"
		assert.NotEqual(t, QueryFingerprint(base), QueryFingerprint(other))
	})

	t.Run("different limit differs", func(t *testing.T) {
		other := base
		other.Limit = 3
		assert.NotEqual(t, QueryFingerprint(base), QueryFingerprint(other))
	})

	t.Run("min score override differs", func(t *testing.T) {
		other := base
		other.MinScoreOverride = 0.5
		assert.NotEqual(t, QueryFingerprint(base), QueryFingerprint(other))
	})
}
