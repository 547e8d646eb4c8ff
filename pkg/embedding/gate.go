package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// warmupText is encoded once at startup to force model load before the
// service accepts traffic.
const warmupText = "Dummy text for warm-up."

// Gate serializes access to the embedding model. Every encode acquires one of
// a fixed number of worker slots, so at most poolSize model invocations run at
// once regardless of how many goroutines ask. Single-text encodes flow through
// an LRU cache keyed by the exact input text.
type Gate struct {
	embedder Embedder
	cache    *lru.Cache[string, []float32]
	pool     *semaphore.Weighted
	poolSize int
}

func NewGate(embedder Embedder, poolSize, cacheSize int) (*Gate, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", poolSize)
	}

	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Gate{
		embedder: embedder,
		cache:    cache,
		pool:     semaphore.NewWeighted(int64(poolSize)),
		poolSize: poolSize,
	}, nil
}

// Warmup forces a model load and verifies the configured dimension. A failure
// here is terminal: the process must not serve traffic with a model that
// cannot encode.
func (g *Gate) Warmup(ctx context.Context) error {
	start := time.Now()
	vec, err := g.EncodeOne(ctx, warmupText)
	if err != nil {
		return fmt.Errorf("embedding model warm-up failed: %w", err)
	}
	slog.Info("embedding model warmed up",
		"dimension", len(vec), "duration", time.Since(start))
	return nil
}

// EncodeOne encodes a single text, hitting the query cache first.
func (g *Gate) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := g.cache.Get(text); ok {
		return vec, nil
	}

	if err := g.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	vec, err := g.embedder.Embed(ctx, text)
	g.pool.Release(1)
	if err != nil {
		return nil, err
	}

	g.cache.Add(text, vec)
	return vec, nil
}

// EncodeBatch encodes texts preserving order. The batch is split across the
// worker slots; results bypass the query cache since document texts do not
// repeat the way queries do.
func (g *Gate) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	chunk := (len(texts) + g.poolSize - 1) / g.poolSize

	eg, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += chunk {
		end := start + chunk
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		eg.Go(func() error {
			if err := g.pool.Acquire(ctx, 1); err != nil {
				return err
			}
			defer g.pool.Release(1)

			vecs, err := g.embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
