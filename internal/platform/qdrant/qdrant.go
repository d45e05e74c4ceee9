// Package qdrant wraps the Qdrant REST API with the narrow surface the
// retrieval engine needs: ensure collection, batch upsert, filtered search,
// delete-by-document, health and stats.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tutorat/internal/model"
)

// ErrUnavailable marks connectivity failures (dial, timeout, 5xx). Ingestion
// retries; the serving path converts it into a degraded empty result.
var ErrUnavailable = errors.New("vector store unavailable")

type Config struct {
	URL           string
	APIKey        string
	Collection    string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

type Client struct {
	url           string
	apiKey        string
	collection    string
	healthTimeout time.Duration
	httpClient    *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 1500 * time.Millisecond
	}
	return &Client{
		url:           strings.TrimRight(cfg.URL, "/"),
		apiKey:        cfg.APIKey,
		collection:    cfg.Collection,
		healthTimeout: healthTimeout,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. The dimension is fixed for the collection's lifetime; switching
// embedding models requires a full reindex into a fresh collection.
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid collection dimension %d", dimension)
	}
	var exists struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionPath()+"/exists", nil, &exists); err != nil {
		return err
	}
	if exists.Result.Exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, c.collectionPath(), body, nil)
}

// UpsertPoints writes a batch of points. Same ID overwrites, which is what
// makes re-ingestion of unchanged content a no-op.
func (c *Client) UpsertPoints(ctx context.Context, points []model.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	return c.do(ctx, http.MethodPut, c.collectionPath()+"/points?wait=true", body, nil)
}

// Query runs a filtered similarity search. The filter is always a conjunction
// over level and subject. Results come back ordered by descending score.
func (c *Client) Query(ctx context.Context, vector []float32, level, subject string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "level", "match": map[string]any{"value": level}},
				{"key": "subject", "match": map[string]any{"value": subject}},
			},
		},
	}
	var resp struct {
		Result []struct {
			ID      string          `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, c.collectionPath()+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		var payload model.PointPayload
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode point payload failed: %w", err)
		}
		results = append(results, model.SearchResult{ID: r.ID, Score: r.Score, Payload: payload})
	}
	return results, nil
}

// DeleteByDocument removes every point belonging to the document. It is the
// only path that removes points, used right before a reindex.
func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	return c.do(ctx, http.MethodPost, c.collectionPath()+"/points/delete?wait=true", body, nil)
}

// Health is a cheap liveness probe bounded by its own short timeout.
func (c *Client) Health(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	err := c.do(probeCtx, http.MethodGet, "/healthz", nil, nil)
	return err == nil
}

// Stats reports the collection point count and status for ingestion
// verification and dashboards.
type Stats struct {
	PointCount int64  `json:"point_count"`
	Status     string `json:"status"`
}

func (c *Client) CollectionStats(ctx context.Context) (*Stats, error) {
	var resp struct {
		Result struct {
			PointsCount int64  `json:"points_count"`
			Status      string `json:"status"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, &resp); err != nil {
		return nil, err
	}
	return &Stats{PointCount: resp.Result.PointsCount, Status: resp.Result.Status}, nil
}

func (c *Client) collectionPath() string {
	return "/collections/" + c.collection
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s %s returned %s", ErrUnavailable, method, path, resp.Status)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response failed: %w", err)
		}
	}
	return nil
}
