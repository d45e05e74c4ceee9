package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: input is empty", ErrEmbedding)
	}
	vectors, err := c.post(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
	}
	if err := c.checkDimension(vectors[0]); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for multiple texts in one call. Order follows
// the input order; blank texts are rejected rather than silently skipped so
// the caller's chunk/vector pairing stays intact.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: batch item %d is empty", ErrEmbedding, i)
		}
	}
	vectors, err := c.post(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := c.checkDimension(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// ValidateDimension embeds a probe text and checks the provider's vector
// dimension against the configured collection dimension. Run once at startup.
func (c *Client) ValidateDimension(ctx context.Context) error {
	vec, err := c.Embed(ctx, "dimension probe")
	if err != nil {
		return err
	}
	if len(vec) != c.cfg.Dimension {
		return fmt.Errorf("%w: model %q produces dimension %d, collection expects %d",
			ErrEmbedding, c.cfg.Model, len(vec), c.cfg.Dimension)
	}
	return nil
}

func (c *Client) checkDimension(vec []float32) error {
	if c.cfg.Dimension > 0 && len(vec) != c.cfg.Dimension {
		return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d",
			ErrEmbedding, len(vec), c.cfg.Dimension)
	}
	return nil
}

// post sends the /embeddings request. input is either a string or a []string.
func (c *Client) post(ctx context.Context, input any) ([][]float32, error) {
	reqBody := map[string]any{
		"model": c.cfg.Model,
		"input": input,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed: %v", ErrEmbedding, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response failed: %v", ErrEmbedding, err)
	}
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
