package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	elasticsearch "github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

// Hit is one lexical search result, ordered by descending score.
type Hit struct {
	ID    string
	Score float64
}

// BulkDoc pairs a document with its _id for streaming bulk indexing.
type BulkDoc struct {
	ID  string
	Doc any
}

// Store wraps the Elasticsearch client with the operations the indexer and
// search engine need. All methods are safe for concurrent use.
type Store struct {
	es *elasticsearch.Client
}

func New(url string) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Store{es: es}, nil
}

// Ping reports whether the cluster answers.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				ID string `json:"id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs q against index (or alias), returning up to size hits ordered
// by descending score. Only sourceFields are fetched from _source.
func (s *Store) Search(ctx context.Context, index string, q Query, size int, sourceFields []string) ([]Hit, error) {
	body := map[string]any{
		"query": q,
		"size":  size,
	}
	if len(sourceFields) > 0 {
		body["_source"] = sourceFields
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", responseError(res))
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(decoded.Hits.Hits))
	for _, h := range decoded.Hits.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		hits = append(hits, Hit{ID: id, Score: h.Score})
	}
	return hits, nil
}

// Index upserts a single document into index (a physical index or an alias
// with a single write target).
func (s *Store) Index(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	res, err := s.es.Index(index, bytes.NewReader(payload),
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document %s: %s", id, responseError(res))
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk streams docs into index, returning the number of successfully indexed
// documents and a reason per failed one.
func (s *Store) Bulk(ctx context.Context, index string, docs []BulkDoc) (int, []string, error) {
	if len(docs) == 0 {
		return 0, nil, nil
	}

	var buf bytes.Buffer
	for _, d := range docs {
		meta := map[string]map[string]string{"index": {"_id": d.ID}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return 0, nil, fmt.Errorf("failed to encode bulk action for %s: %w", d.ID, err)
		}
		if err := json.NewEncoder(&buf).Encode(d.Doc); err != nil {
			return 0, nil, fmt.Errorf("failed to encode bulk document %s: %w", d.ID, err)
		}
	}

	res, err := s.es.Bulk(bytes.NewReader(buf.Bytes()),
		s.es.Bulk.WithIndex(index),
		s.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, fmt.Errorf("bulk indexing failed: %s", responseError(res))
	}

	var decoded bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return 0, nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	success := 0
	var failures []string
	for _, item := range decoded.Items {
		for _, op := range item {
			if op.Status >= 200 && op.Status < 300 {
				success++
			} else if op.Error != nil {
				failures = append(failures, fmt.Sprintf("%s: %s: %s", op.ID, op.Error.Type, op.Error.Reason))
			} else {
				failures = append(failures, fmt.Sprintf("%s: status %d", op.ID, op.Status))
			}
		}
	}
	return success, failures, nil
}

// DeleteByID removes a document. Not-found is treated as success: the goal
// state (document absent) already holds.
func (s *Store) DeleteByID(ctx context.Context, index, id string) error {
	res, err := s.es.Delete(index, id, s.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		slog.Warn("lexical document already absent", "id", id, "index", index)
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete document %s: %s", id, responseError(res))
	}
	return nil
}

// CreateIndex creates a physical index with default mappings.
func (s *Store) CreateIndex(ctx context.Context, name string) error {
	res, err := s.es.Indices.Create(name, s.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", name, responseError(res))
	}
	return nil
}

// DropIndex deletes a physical index. Missing indices are tolerated.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	res, err := s.es.Indices.Delete([]string{name},
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("failed to drop index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to drop index %s: %s", name, responseError(res))
	}
	return nil
}

// IndicesForAlias lists the physical indices an alias currently resolves to.
// A missing alias yields an empty list, not an error.
func (s *Store) IndicesForAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := s.es.Indices.GetAlias(
		s.es.Indices.GetAlias.WithContext(ctx),
		s.es.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alias %s: %w", alias, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to resolve alias %s: %s", alias, responseError(res))
	}

	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode alias response: %w", err)
	}

	indices := make([]string, 0, len(decoded))
	for name := range decoded {
		indices = append(indices, name)
	}
	return indices, nil
}

// EnsureAlias makes sure alias resolves to something: if it is absent, an
// empty "<alias>-initial" index is created and the alias pointed at it, so
// reads and incremental writes have a target before the first full reindex.
func (s *Store) EnsureAlias(ctx context.Context, alias string) error {
	existing, err := s.IndicesForAlias(ctx, alias)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	initial := alias + "-initial"
	if err := s.CreateIndex(ctx, initial); err != nil {
		return err
	}

	slog.Info("bootstrapping lexical alias", "alias", alias, "index", initial)
	return s.SwapAlias(ctx, alias, initial, nil)
}

type aliasActions struct {
	Actions []map[string]aliasTarget `json:"actions"`
}

type aliasTarget struct {
	Index string `json:"index"`
	Alias string `json:"alias"`
}

// SwapAlias atomically points alias at newIndex and detaches every index in
// old. Elasticsearch applies the whole action list in one cluster-state
// update, so readers never observe zero or two targets.
func (s *Store) SwapAlias(ctx context.Context, alias, newIndex string, old []string) error {
	body := aliasActions{
		Actions: []map[string]aliasTarget{
			{"add": {Index: newIndex, Alias: alias}},
		},
	}
	for _, idx := range old {
		body.Actions = append(body.Actions, map[string]aliasTarget{
			"remove": {Index: idx, Alias: alias},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal alias actions: %w", err)
	}

	res, err := s.es.Indices.UpdateAliases(bytes.NewReader(payload),
		s.es.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to update alias %s: %w", alias, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to update alias %s: %s", alias, responseError(res))
	}
	return nil
}

func responseError(res *esapi.Response) string {
	body, err := io.ReadAll(res.Body)
	if err != nil || len(body) == 0 {
		return res.Status()
	}
	return fmt.Sprintf("%s: %s", res.Status(), string(body))
}
