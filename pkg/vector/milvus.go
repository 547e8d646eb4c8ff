// Package vector adapts Milvus as the ANN store over its RESTful v2 API.
// The collection holds one row per candidate keyed by candidate_id, with a
// fixed-dimension float vector searched by inner product.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/talentsearch/pkg/config"
)

const (
	// maxFilterIDs caps the allowlist length per search request; longer
	// lists are chunked to stay under Milvus' expression size limit.
	maxFilterIDs = 512

	defaultNProbe = 10
)

// Hit is one ANN result ordered by descending similarity.
type Hit struct {
	ID    string
	Score float64
}

// Store talks to one Milvus collection.
type Store struct {
	baseURL    string
	collection string
	dim        int
	params     config.IndexParams
	httpClient *http.Client
}

func New(baseURL, collection string, dim int, params config.IndexParams) *Store {
	return &Store{
		baseURL:    baseURL,
		collection: collection,
		dim:        dim,
		params:     params,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type milvusResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *Store) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("milvus request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("milvus returned status %d: %s", resp.StatusCode, string(msg))
	}

	var decoded milvusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode milvus response: %w", err)
	}

	// Older server builds report success as 200 instead of 0.
	if decoded.Code != 0 && decoded.Code != http.StatusOK {
		return nil, fmt.Errorf("milvus error %d: %s", decoded.Code, decoded.Message)
	}

	return decoded.Data, nil
}

// HasCollection reports whether the collection exists.
func (s *Store) HasCollection(ctx context.Context) (bool, error) {
	data, err := s.post(ctx, "/v2/vectordb/collections/has", map[string]any{
		"collectionName": s.collection,
	})
	if err != nil {
		return false, err
	}

	var decoded struct {
		Has bool `json:"has"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return false, fmt.Errorf("failed to decode has-collection response: %w", err)
	}
	return decoded.Has, nil
}

// EnsureCollection creates the collection and its ANN index if absent, then
// loads it into memory. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.HasCollection(ctx)
	if err != nil {
		return err
	}

	if !exists {
		indexParams := map[string]any{"index_type": s.params.IndexType}
		for k, v := range s.params.Params {
			indexParams[k] = v
		}

		payload := map[string]any{
			"collectionName": s.collection,
			"schema": map[string]any{
				"autoId":             false,
				"enableDynamicField": false,
				"fields": []map[string]any{
					{
						"fieldName":         "candidate_id",
						"dataType":          "VarChar",
						"isPrimary":         true,
						"elementTypeParams": map[string]string{"max_length": "36"},
					},
					{
						"fieldName":         "embedding",
						"dataType":          "FloatVector",
						"elementTypeParams": map[string]string{"dim": strconv.Itoa(s.dim)},
					},
				},
			},
			"indexParams": []map[string]any{
				{
					"fieldName":  "embedding",
					"indexName":  "embedding_idx",
					"metricType": s.params.MetricType,
					"params":     indexParams,
				},
			},
		}

		if _, err := s.post(ctx, "/v2/vectordb/collections/create", payload); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
	}

	if _, err := s.post(ctx, "/v2/vectordb/collections/load", map[string]any{
		"collectionName": s.collection,
	}); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", s.collection, err)
	}
	return nil
}

// DropCollection removes the collection and all vectors in it.
func (s *Store) DropCollection(ctx context.Context) error {
	if _, err := s.post(ctx, "/v2/vectordb/collections/drop", map[string]any{
		"collectionName": s.collection,
	}); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes vectors keyed by candidate id. Existing rows with the same
// primary key are replaced.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != s.dim {
			return fmt.Errorf("vector for %s has dimension %d, want %d", id, len(vectors[i]), s.dim)
		}
		rows[i] = map[string]any{
			"candidate_id": id,
			"embedding":    vectors[i],
		}
	}

	if _, err := s.post(ctx, "/v2/vectordb/entities/upsert", map[string]any{
		"collectionName": s.collection,
		"data":           rows,
	}); err != nil {
		return fmt.Errorf("failed to upsert %d vectors: %w", len(ids), err)
	}
	return nil
}

// Delete removes vectors by candidate id. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.post(ctx, "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": s.collection,
		"filter":         inFilter(ids),
	}); err != nil {
		return fmt.Errorf("failed to delete %d vectors: %w", len(ids), err)
	}
	return nil
}

// Search runs an ANN query restricted to allowlist, returning up to topK hits
// by descending similarity. Allowlists longer than the expression limit are
// chunked and merged by best score per id.
func (s *Store) Search(ctx context.Context, queryVec []float32, topK int, allowlist []string) ([]Hit, error) {
	if len(allowlist) == 0 {
		return nil, nil
	}

	best := make(map[string]float64, topK)
	for start := 0; start < len(allowlist); start += maxFilterIDs {
		end := start + maxFilterIDs
		if end > len(allowlist) {
			end = len(allowlist)
		}

		hits, err := s.searchChunk(ctx, queryVec, topK, allowlist[start:end])
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if score, ok := best[h.ID]; !ok || h.Score > score {
				best[h.ID] = h.Score
			}
		}
	}

	merged := make([]Hit, 0, len(best))
	for id, score := range best {
		merged = append(merged, Hit{ID: id, Score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (s *Store) searchChunk(ctx context.Context, queryVec []float32, topK int, ids []string) ([]Hit, error) {
	nprobe := defaultNProbe
	switch n := s.params.Params["nprobe"].(type) {
	case int:
		nprobe = n
	case float64:
		// JSON-sourced override
		nprobe = int(n)
	}

	payload := map[string]any{
		"collectionName": s.collection,
		"data":           [][]float32{queryVec},
		"annsField":      "embedding",
		"limit":          topK,
		"filter":         inFilter(ids),
		"outputFields":   []string{"candidate_id"},
		"searchParams": map[string]any{
			"metricType": s.params.MetricType,
			"params":     map[string]any{"nprobe": nprobe},
		},
	}

	data, err := s.post(ctx, "/v2/vectordb/entities/search", payload)
	if err != nil {
		return nil, fmt.Errorf("ann search failed: %w", err)
	}

	var rows []struct {
		CandidateID string  `json:"candidate_id"`
		Distance    float64 `json:"distance"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{ID: r.CandidateID, Score: r.Distance})
	}
	return hits, nil
}

var idEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// inFilter renders `candidate_id in ["a", "b"]` with ids escaped so malformed
// upstream ids cannot break out of the expression.
func inFilter(ids []string) string {
	var b strings.Builder
	b.WriteString(`candidate_id in [`)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('"')
		b.WriteString(idEscaper.Replace(id))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}
