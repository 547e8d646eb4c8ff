package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/lexical"
	"github.com/hireloop/talentsearch/pkg/vector"
)

type fakeLexical struct {
	hits     []lexical.Hit
	err      error
	gotQuery lexical.Query
	gotIndex string
	gotSize  int
	gotSrc   []string
}

func (f *fakeLexical) Search(ctx context.Context, index string, q lexical.Query, size int, sourceFields []string) ([]lexical.Hit, error) {
	f.gotIndex = index
	f.gotQuery = q
	f.gotSize = size
	f.gotSrc = sourceFields
	return f.hits, f.err
}

type fakeVector struct {
	hits         []vector.Hit
	err          error
	gotAllowlist []string
	gotTopK      int
	calls        int
}

func (f *fakeVector) Search(ctx context.Context, queryVec []float32, topK int, allowlist []string) ([]vector.Hit, error) {
	f.calls++
	f.gotTopK = topK
	f.gotAllowlist = allowlist
	return f.hits, f.err
}

type fakeEncoder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEncoder) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func lexHits(ids ...string) []lexical.Hit {
	out := make([]lexical.Hit, len(ids))
	for i, id := range ids {
		out[i] = lexical.Hit{ID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func vecHits(ids ...string) []vector.Hit {
	out := make([]vector.Hit, len(ids))
	for i, id := range ids {
		out[i] = vector.Hit{ID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func newTestEngine(lex *fakeLexical, vec *fakeVector, enc *fakeEncoder) *Engine {
	return NewEngine(lex, vec, enc, "candidates", 500, 10, 60, nil)
}

func TestSearch_LexicalFailureIsFatal(t *testing.T) {
	lex := &fakeLexical{err: errors.New("es down")}
	engine := newTestEngine(lex, &fakeVector{}, &fakeEncoder{})

	_, err := engine.Search(context.Background(), candidate.SearchFilters{})
	require.Error(t, err)
}

func TestSearch_EmptyLexicalShortCircuits(t *testing.T) {
	vec := &fakeVector{}
	enc := &fakeEncoder{}
	engine := newTestEngine(&fakeLexical{}, vec, enc)

	results, err := engine.Search(context.Background(), candidate.SearchFilters{Role: "Backend"})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, enc.calls, "no embedding when nothing passed the filter")
	assert.Zero(t, vec.calls)
}

func TestSearch_SemanticSkippedWithoutQueryText(t *testing.T) {
	lex := &fakeLexical{hits: lexHits("a", "b")}
	vec := &fakeVector{}
	enc := &fakeEncoder{}
	engine := newTestEngine(lex, vec, enc)

	// Only structural filters: nothing to embed.
	results, err := engine.Search(context.Background(), candidate.SearchFilters{
		MustSkills: []string{"go"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Zero(t, enc.calls)
	assert.Equal(t, "a", results[0].CandidateID)
	assert.Equal(t, "b", results[1].CandidateID)
}

func TestSearch_SemanticAgreementWins(t *testing.T) {
	// Lexical order a, b, c; semantic puts c first. c gains a second
	// contribution and must beat b.
	lex := &fakeLexical{hits: lexHits("a", "b", "c")}
	vec := &fakeVector{hits: vecHits("c", "a")}
	enc := &fakeEncoder{vec: []float32{0.1, 0.2}}
	engine := newTestEngine(lex, vec, enc)

	results, err := engine.Search(context.Background(), candidate.SearchFilters{Role: "Backend"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].CandidateID)
	assert.Equal(t, "c", results[1].CandidateID)
	assert.Equal(t, "b", results[2].CandidateID)
	assert.Equal(t, []string{"a", "b", "c"}, vec.gotAllowlist)
	assert.Equal(t, 10, vec.gotTopK)
}

func TestSearch_DegradesWhenEncodingFails(t *testing.T) {
	lex := &fakeLexical{hits: lexHits("a", "b")}
	vec := &fakeVector{}
	enc := &fakeEncoder{err: errors.New("embedder down")}
	engine := newTestEngine(lex, vec, enc)

	results, err := engine.Search(context.Background(), candidate.SearchFilters{Role: "Backend"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].CandidateID)
	assert.Zero(t, vec.calls)
}

func TestSearch_DegradesWhenANNFails(t *testing.T) {
	lex := &fakeLexical{hits: lexHits("a", "b")}
	vec := &fakeVector{err: errors.New("milvus down")}
	enc := &fakeEncoder{vec: []float32{0.5}}
	engine := newTestEngine(lex, vec, enc)

	results, err := engine.Search(context.Background(), candidate.SearchFilters{Role: "Backend"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].CandidateID)
	assert.Equal(t, "b", results[1].CandidateID)
}

func TestSearch_RequestsOnlyIDField(t *testing.T) {
	lex := &fakeLexical{hits: lexHits("a")}
	engine := newTestEngine(lex, &fakeVector{}, &fakeEncoder{})

	_, err := engine.Search(context.Background(), candidate.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, "candidates", lex.gotIndex)
	assert.Equal(t, 500, lex.gotSize)
	assert.Equal(t, []string{"id"}, lex.gotSrc)
}

func TestBuildQuery_Empty(t *testing.T) {
	q := BuildQuery(candidate.SearchFilters{})
	assert.NotNil(t, q.MatchAll)
	assert.Nil(t, q.Bool)
}

func TestBuildQuery_AllClauses(t *testing.T) {
	min, max := 2.0, 6.0
	q := BuildQuery(candidate.SearchFilters{
		Role:          "Backend Developer",
		MustSkills:    []string{"go", "postgresql"},
		NiceSkills:    []string{"kafka"},
		ExperienceMin: &min,
		ExperienceMax: &max,
		Location:      "Berlin",
		WorkModes:     []string{"remote"},
		ExcludeIDs:    []string{"c9"},
	})

	require.NotNil(t, q.Bool)
	// role, range, location, two must skills, work modes
	assert.Len(t, q.Bool.Must, 6)
	assert.Len(t, q.Bool.Should, 1)
	assert.Len(t, q.Bool.MustNot, 1)
	require.NotNil(t, q.Bool.MinimumShouldMatch)
	assert.Equal(t, 0, *q.Bool.MinimumShouldMatch)

	role := q.Bool.Must[0].Match["headline_role"]
	assert.Equal(t, "Backend Developer", role.Query)
	assert.Empty(t, role.Fuzziness, "role match is exact")

	loc := q.Bool.Must[2].Match["location"]
	assert.Equal(t, "AUTO", loc.Fuzziness)

	require.NotNil(t, q.Bool.MustNot[0].IDs)
	assert.Equal(t, []string{"c9"}, q.Bool.MustNot[0].IDs.Values)
}

func TestBuildQuery_NiceSkillsNeverFilter(t *testing.T) {
	q := BuildQuery(candidate.SearchFilters{NiceSkills: []string{"kafka", "redis"}})
	require.NotNil(t, q.Bool)
	assert.Empty(t, q.Bool.Must)
	assert.Len(t, q.Bool.Should, 2)
	require.NotNil(t, q.Bool.MinimumShouldMatch)
	assert.Equal(t, 0, *q.Bool.MinimumShouldMatch, "should clauses only boost")
}

func TestSemanticQueryText(t *testing.T) {
	assert.Equal(t, "", SemanticQueryText(candidate.SearchFilters{}))
	assert.Equal(t, "Backend", SemanticQueryText(candidate.SearchFilters{Role: "Backend"}))
	assert.Equal(t, "Backend, kafka, redis", SemanticQueryText(candidate.SearchFilters{
		Role:       "Backend",
		NiceSkills: []string{"kafka", "redis"},
	}))
	assert.Equal(t, "kafka", SemanticQueryText(candidate.SearchFilters{
		NiceSkills: []string{"kafka"},
	}))
}

func TestFuse_TieBreaksOnID(t *testing.T) {
	// Same single-list rank contributions, different ids.
	results := fuse([]string{"b"}, []string{"a"}, 60)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].CandidateID)
	assert.Equal(t, "b", results[1].CandidateID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestFuse_ScoresAreReciprocalRanks(t *testing.T) {
	results := fuse([]string{"a", "b"}, []string{"a"}, 60)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].CandidateID)
	assert.InDelta(t, 1.0/61+1.0/61, results[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62, results[1].Score, 1e-12)
}
