// Package ai talks to the OpenAI-compatible embedding endpoint that backs the
// retrieval engine. One client instance is shared across the process.
package ai

import (
	"errors"
	"net/http"
	"time"
)

// ErrEmbedding marks provider-side failures (HTTP errors, timeouts, malformed
// responses). Ingestion retries them; retrieval degrades to an empty context.
var ErrEmbedding = errors.New("embedding provider error")

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Dimension returns the fixed vector dimension of the collection's embedding
// space. It is validated once at startup; a model/collection mismatch degrades
// quality silently, so the check happens before serving, not per request.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}
