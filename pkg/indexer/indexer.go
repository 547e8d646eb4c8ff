// Package indexer keeps the lexical index and the ANN collection consistent
// with the upstream candidate API: incremental upserts/deletes driven by bus
// events, and a zero-downtime full rebuild behind an alias swap.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/lexical"
	"github.com/hireloop/talentsearch/pkg/observability"
)

// LexicalStore is the slice of the Elasticsearch adapter the indexer drives.
type LexicalStore interface {
	Index(ctx context.Context, index, id string, doc any) error
	Bulk(ctx context.Context, index string, docs []lexical.BulkDoc) (int, []string, error)
	DeleteByID(ctx context.Context, index, id string) error
	CreateIndex(ctx context.Context, name string) error
	DropIndex(ctx context.Context, name string) error
	IndicesForAlias(ctx context.Context, alias string) ([]string, error)
	SwapAlias(ctx context.Context, alias, newIndex string, old []string) error
}

// VectorStore is the slice of the ANN adapter the indexer drives.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	DropCollection(ctx context.Context) error
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Delete(ctx context.Context, ids []string) error
}

// Encoder produces embeddings for candidate documents.
type Encoder interface {
	EncodeOne(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Source pages candidates out of the upstream API.
type Source interface {
	FetchBatch(ctx context.Context, limit, offset int) ([]candidate.Candidate, error)
}

// ReindexResult summarizes a completed full reindex.
type ReindexResult struct {
	ActiveIndex  string `json:"active_index"`
	TotalIndexed int    `json:"total_indexed"`
}

type Indexer struct {
	lex       LexicalStore
	vec       VectorStore
	enc       Encoder
	src       Source
	alias     string
	batchSize int
	metrics   *observability.Recorder
}

func New(lex LexicalStore, vec VectorStore, enc Encoder, src Source, alias string, batchSize int, metrics *observability.Recorder) *Indexer {
	return &Indexer{
		lex:       lex,
		vec:       vec,
		enc:       enc,
		src:       src,
		alias:     alias,
		batchSize: batchSize,
		metrics:   metrics,
	}
}

// Upsert writes one candidate into both stores via the live alias. Applying
// it twice with the same payload is indistinguishable from once: both stores
// key on the candidate id.
func (ix *Indexer) Upsert(ctx context.Context, c candidate.Candidate) error {
	doc, err := candidate.ToLexical(c)
	if err != nil {
		return err
	}

	if err := ix.lex.Index(ctx, ix.alias, doc.ID, doc); err != nil {
		return fmt.Errorf("lexical upsert for %s failed: %w", doc.ID, err)
	}

	text := candidate.ToSemanticText(c)
	if text == "" {
		slog.Warn("candidate has no embeddable content, skipping vector", "id", doc.ID)
		ix.metrics.RecordIndexed(ctx, 1)
		return nil
	}

	vec, err := ix.enc.EncodeOne(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding for %s failed: %w", doc.ID, err)
	}

	if err := ix.vec.Upsert(ctx, []string{doc.ID}, [][]float32{vec}); err != nil {
		return fmt.Errorf("vector upsert for %s failed: %w", doc.ID, err)
	}

	slog.Info("indexed candidate", "id", doc.ID)
	ix.metrics.RecordIndexed(ctx, 1)
	return nil
}

// Delete removes a candidate from both stores. Not-found in either store is
// success: the desired state already holds.
func (ix *Indexer) Delete(ctx context.Context, id string) error {
	if id == "" {
		return candidate.ErrMissingID
	}

	if err := ix.lex.DeleteByID(ctx, ix.alias, id); err != nil {
		return fmt.Errorf("lexical delete for %s failed: %w", id, err)
	}

	if err := ix.vec.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("vector delete for %s failed: %w", id, err)
	}

	slog.Info("deleted candidate", "id", id)
	return nil
}

// FullReindex rebuilds both stores from the upstream enumeration without
// downtime. The new lexical index is populated off to the side and the alias
// swapped atomically at the end; any failure before the swap leaves the live
// alias untouched. The partially built index is left behind for operator
// cleanup since the next run picks a fresh timestamped name anyway.
func (ix *Indexer) FullReindex(ctx context.Context) (ReindexResult, error) {
	start := time.Now()
	newIndex := fmt.Sprintf("%s-%d", ix.alias, start.Unix())
	slog.Info("starting full reindex", "index", newIndex)

	if err := ix.lex.CreateIndex(ctx, newIndex); err != nil {
		return ReindexResult{}, err
	}

	// The ANN collection has no alias mechanism; it is rebuilt in place.
	// Semantic search degrades to lexical-only while it refills.
	if err := ix.vec.DropCollection(ctx); err != nil {
		return ReindexResult{}, fmt.Errorf("failed to drop vector collection: %w", err)
	}
	if err := ix.vec.EnsureCollection(ctx); err != nil {
		return ReindexResult{}, fmt.Errorf("failed to recreate vector collection: %w", err)
	}

	offset := 0
	totalIndexed := 0
	for {
		batch, err := ix.src.FetchBatch(ctx, ix.batchSize, offset)
		if err != nil {
			return ReindexResult{}, fmt.Errorf("aborting reindex at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		indexed, err := ix.indexBatch(ctx, newIndex, batch)
		if err != nil {
			return ReindexResult{}, fmt.Errorf("aborting reindex at offset %d: %w", offset, err)
		}

		totalIndexed += indexed
		offset += ix.batchSize
		slog.Info("reindex batch complete", "offset", offset, "total_indexed", totalIndexed)
	}

	oldIndices, err := ix.lex.IndicesForAlias(ctx, ix.alias)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("failed to resolve current alias targets: %w", err)
	}

	if err := ix.lex.SwapAlias(ctx, ix.alias, newIndex, oldIndices); err != nil {
		return ReindexResult{}, fmt.Errorf("failed to swap alias: %w", err)
	}
	slog.Info("alias switched", "alias", ix.alias, "index", newIndex)

	// Past the swap the rebuild is live; stale indices are best-effort
	// cleanup and must not fail the run.
	for _, old := range oldIndices {
		if err := ix.lex.DropIndex(ctx, old); err != nil {
			slog.Warn("failed to delete old index", "index", old, "error", err)
		} else {
			slog.Info("deleted old index", "index", old)
		}
	}

	ix.metrics.RecordReindex(ctx, time.Since(start))
	ix.metrics.RecordIndexed(ctx, totalIndexed)
	slog.Info("full reindex complete",
		"index", newIndex, "total_indexed", totalIndexed, "duration", time.Since(start))

	return ReindexResult{ActiveIndex: newIndex, TotalIndexed: totalIndexed}, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, index string, batch []candidate.Candidate) (int, error) {
	docs := make([]lexical.BulkDoc, 0, len(batch))
	ids := make([]string, 0, len(batch))
	texts := make([]string, 0, len(batch))

	for _, c := range batch {
		doc, err := candidate.ToLexical(c)
		if err != nil {
			slog.Warn("skipping malformed candidate", "error", err)
			continue
		}
		docs = append(docs, lexical.BulkDoc{ID: doc.ID, Doc: doc})

		// Candidates with nothing embeddable stay lexical-only.
		if text := candidate.ToSemanticText(c); text != "" {
			ids = append(ids, doc.ID)
			texts = append(texts, text)
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	success, failures, err := ix.lex.Bulk(ctx, index, docs)
	if err != nil {
		return 0, err
	}
	for _, f := range failures {
		slog.Warn("bulk index failure", "reason", f)
	}

	if len(ids) > 0 {
		vectors, err := ix.enc.EncodeBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("batch embedding failed: %w", err)
		}
		if err := ix.vec.Upsert(ctx, ids, vectors); err != nil {
			return 0, err
		}
	}

	return success, nil
}
