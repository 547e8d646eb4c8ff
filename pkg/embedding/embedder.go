// Package embedding provides the single point of access to the sentence
// embedding model. The model runs as a sidecar HTTP service (Ollama-compatible
// /api/embed endpoint); Gate adds query caching and bounds concurrency so
// embedding work cannot starve request-serving goroutines.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPEmbedder calls an Ollama-compatible embedding server.
type HTTPEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

func NewHTTPEmbedder(baseURL, model string, dim int) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		// Cold model loads can take minutes on first call.
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (e *HTTPEmbedder) Dimension() int {
	return e.dim
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, string(msg))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d inputs",
			len(decoded.Embeddings), len(texts))
	}

	for i, vec := range decoded.Embeddings {
		if len(vec) != e.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vec), e.dim)
		}
	}

	return decoded.Embeddings, nil
}
