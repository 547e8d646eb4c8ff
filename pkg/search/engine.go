// Package search implements the two-stage hybrid retrieval pipeline: a
// structured lexical filter pass, a semantic ANN rerank restricted to the
// filtered set, and reciprocal rank fusion of the two orderings.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/lexical"
	"github.com/hireloop/talentsearch/pkg/observability"
	"github.com/hireloop/talentsearch/pkg/vector"
)

// LexicalSearcher runs structured queries against the lexical alias.
type LexicalSearcher interface {
	Search(ctx context.Context, index string, q lexical.Query, size int, sourceFields []string) ([]lexical.Hit, error)
}

// VectorSearcher runs filtered ANN queries.
type VectorSearcher interface {
	Search(ctx context.Context, queryVec []float32, topK int, allowlist []string) ([]vector.Hit, error)
}

// Encoder embeds the semantic query text.
type Encoder interface {
	EncodeOne(ctx context.Context, text string) ([]float32, error)
}

// Result is one fused ranking entry.
type Result struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
}

type Engine struct {
	lex     LexicalSearcher
	vec     VectorSearcher
	enc     Encoder
	alias   string
	size    int
	topK    int
	rrfK    int
	metrics *observability.Recorder
}

func NewEngine(lex LexicalSearcher, vec VectorSearcher, enc Encoder, alias string, size, topK, rrfK int, metrics *observability.Recorder) *Engine {
	return &Engine{
		lex:     lex,
		vec:     vec,
		enc:     enc,
		alias:   alias,
		size:    size,
		topK:    topK,
		rrfK:    rrfK,
		metrics: metrics,
	}
}

// Search runs the full pipeline. Filters must be normalized and validated by
// the caller. An ANN failure degrades to the lexical-only ranking rather than
// failing the request.
func (e *Engine) Search(ctx context.Context, filters candidate.SearchFilters) ([]Result, error) {
	start := time.Now()

	lexHits, err := e.lex.Search(ctx, e.alias, BuildQuery(filters), e.size, []string{"id"})
	if err != nil {
		e.metrics.RecordSearch(ctx, time.Since(start), true)
		return nil, fmt.Errorf("lexical stage failed: %w", err)
	}
	if len(lexHits) == 0 {
		e.metrics.RecordSearch(ctx, time.Since(start), false)
		return []Result{}, nil
	}

	lexIDs := make([]string, len(lexHits))
	for i, h := range lexHits {
		lexIDs[i] = h.ID
	}

	var vecIDs []string
	if queryText := SemanticQueryText(filters); queryText != "" {
		vecIDs = e.semanticStage(ctx, queryText, lexIDs)
	}

	results := fuse(lexIDs, vecIDs, e.rrfK)
	e.metrics.RecordSearch(ctx, time.Since(start), false)
	return results, nil
}

// semanticStage encodes the query and reranks the filtered set. Failures are
// logged and swallowed: the caller falls back to the lexical ordering.
func (e *Engine) semanticStage(ctx context.Context, queryText string, allowlist []string) []string {
	queryVec, err := e.enc.EncodeOne(ctx, queryText)
	if err != nil {
		slog.Error("semantic stage degraded: query embedding failed", "error", err)
		return nil
	}

	hits, err := e.vec.Search(ctx, queryVec, e.topK, allowlist)
	if err != nil {
		slog.Error("semantic stage degraded: ann search failed", "error", err)
		return nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

// BuildQuery translates search filters into the lexical bool query. With no
// constraints at all the query degenerates to match_all.
func BuildQuery(f candidate.SearchFilters) lexical.Query {
	var must, should, mustNot []lexical.Query

	if f.Role != "" {
		must = append(must, lexical.Match("headline_role", f.Role))
	}
	if f.ExperienceMin != nil || f.ExperienceMax != nil {
		must = append(must, lexical.Range("experience_years", f.ExperienceMin, f.ExperienceMax))
	}
	if f.Location != "" {
		must = append(must, lexical.MatchFuzzy("location", f.Location))
	}
	for _, skill := range f.MustSkills {
		must = append(must, lexical.MatchFuzzy("skills", skill))
	}
	if len(f.WorkModes) > 0 {
		must = append(must, lexical.TermsAny("work_modes", f.WorkModes))
	}

	// Nice-to-have skills boost ranking but never filter.
	for _, skill := range f.NiceSkills {
		should = append(should, lexical.MatchFuzzy("skills", skill))
	}

	if len(f.ExcludeIDs) > 0 {
		mustNot = append(mustNot, lexical.ByIDs(f.ExcludeIDs))
	}

	return lexical.Bool(must, should, mustNot, 0)
}

// SemanticQueryText renders the stage-2 query: the role followed by the
// nice-to-have skills. Empty output means stage 2 is skipped entirely.
func SemanticQueryText(f candidate.SearchFilters) string {
	parts := make([]string, 0, 1+len(f.NiceSkills))
	if f.Role != "" {
		parts = append(parts, f.Role)
	}
	parts = append(parts, f.NiceSkills...)
	return strings.Join(parts, ", ")
}

// fuse combines the two rankings with reciprocal rank fusion: each list
// contributes 1/(k + rank + 1) per id with zero-based ranks. Ties break on
// the lexicographically smaller id so results are deterministic.
func fuse(lexIDs, vecIDs []string, k int) []Result {
	scores := make(map[string]float64, len(lexIDs))
	for rank, id := range lexIDs {
		scores[id] += 1.0 / float64(k+rank+1)
	}
	for rank, id := range vecIDs {
		scores[id] += 1.0 / float64(k+rank+1)
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{CandidateID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
	return results
}
