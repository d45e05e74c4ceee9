// Package cache holds retrieval results in Redis so repeated questions skip
// the embedding call and the vector search entirely.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"tutorat/internal/model"
)

const versionKey = "search:collection_version"

// KV is the slice of the Redis API the cache touches. *redis.Client
// satisfies it; tests back it with an in-memory map.
type KV interface {
	Get(ctx context.Context, key string) *redisv9.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redisv9.StatusCmd
	Incr(ctx context.Context, key string) *redisv9.IntCmd
}

// SearchCache keys entries by a normalized (query, level, subject, limit)
// tuple plus a collection version stamp. InvalidateAll bumps the version, so
// every previously issued key goes stale at once without enumerating keys;
// the TTL reclaims the orphaned entries.
type SearchCache struct {
	client KV
	ttl    time.Duration
}

func NewSearchCache(client KV, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SearchCache{client: client, ttl: ttl}
}

func (c *SearchCache) Get(ctx context.Context, q model.Query) (*model.RetrievalResult, bool, error) {
	key, err := c.key(ctx, q)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get search result failed: %w", err)
	}
	var result model.RetrievalResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached search result failed: %w", err)
	}
	return &result, true, nil
}

func (c *SearchCache) Set(ctx context.Context, q model.Query, result *model.RetrievalResult) error {
	key, err := c.key(ctx, q)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal search result failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set search result failed: %w", err)
	}
	return nil
}

// InvalidateAll bumps the collection version after a reindex. Entries written
// under the old version are unreachable from then on.
func (c *SearchCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("redis bump collection version failed: %w", err)
	}
	return nil
}

func (c *SearchCache) key(ctx context.Context, q model.Query) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Result()
	if err == redisv9.Nil {
		version = "0"
	} else if err != nil {
		return "", fmt.Errorf("redis get collection version failed: %w", err)
	}
	return fmt.Sprintf("search:v%s:%s", version, QueryFingerprint(q)), nil
}

// QueryFingerprint hashes the normalized request. Two requests differing only
// in whitespace or letter case share an entry.
func QueryFingerprint(q model.Query) string {
	normalized := strings.Join([]string{
		NormalizeQueryText(q.Text),
		strings.ToLower(strings.TrimSpace(q.Level)),
		strings.ToLower(strings.TrimSpace(q.Subject)),
		fmt.Sprintf("%d", q.Limit),
		fmt.Sprintf("%.4f", q.MinScoreOverride),
	}, "|")
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeQueryText lowercases and collapses runs of whitespace.
func NormalizeQueryText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
