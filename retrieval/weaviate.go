package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// String metadata values are stored as properties named metaPrefix+key so
// filters can run server-side.
const metaPrefix = "meta_"

var propertyName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// WeaviateConfig locates a Weaviate instance and the class holding documents.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	APIKey string `yaml:"api_key"`
	Class  string `yaml:"class"`
}

// WeaviateStore is a VectorStore backed by a Weaviate class. Vectors are
// supplied by the caller; the class needs no vectorizer module.
type WeaviateStore struct {
	class   string
	backend weaviateBackend
}

type weaviateBackend interface {
	insert(ctx context.Context, objects []*models.Object) error
	nearVector(ctx context.Context, class string, vector []float32, k int, where *filters.WhereBuilder) (map[string]models.JSONObject, error)
}

// NewWeaviateStore connects to the instance described by cfg.
func NewWeaviateStore(cfg WeaviateConfig) (*WeaviateStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate host is not configured")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = "Document"
	}
	wcfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateStore{class: cfg.Class, backend: &weaviateClient{client: client}}, nil
}

// Add implements VectorStore.
func (s *WeaviateStore) Add(ctx context.Context, docs []Document, vectors [][]float32) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("got %d documents and %d vectors", len(docs), len(vectors))
	}
	ids := make([]string, len(docs))
	objects := make([]*models.Object, len(docs))
	for i, d := range docs {
		id := d.ID
		if _, err := uuid.Parse(id); err != nil {
			// Weaviate requires UUIDs; derive a stable one from foreign IDs.
			if id == "" {
				id = uuid.NewString()
			} else {
				id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(d.ID)).String()
			}
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		props := map[string]any{
			"content":  d.PageContent,
			"metadata": string(meta),
		}
		for k, v := range d.Metadata {
			if sv, ok := v.(string); ok && propertyName.MatchString(k) {
				props[metaPrefix+k] = sv
			}
		}
		objects[i] = &models.Object{
			Class:      s.class,
			ID:         strfmt.UUID(id),
			Vector:     vectors[i],
			Properties: props,
		}
		ids[i] = id
	}
	if err := s.backend.insert(ctx, objects); err != nil {
		return nil, err
	}
	return ids, nil
}

// Search implements VectorStore. Filter keys must be valid property names.
func (s *WeaviateStore) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredDocument, error) {
	if k <= 0 {
		k = 4
	}
	where, err := whereFilter(filter)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.nearVector(ctx, s.class, vector, k, where)
	if err != nil {
		return nil, err
	}
	return parseWeaviateHits(data, s.class)
}

func whereFilter(filter Filter) (*filters.WhereBuilder, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	operands := make([]*filters.WhereBuilder, 0, len(filter))
	for k, v := range filter {
		if !propertyName.MatchString(k) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		operands = append(operands, filters.Where().
			WithPath([]string{metaPrefix + k}).
			WithOperator(filters.Equal).
			WithValueString(v))
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

type weaviateHit struct {
	Content    string `json:"content"`
	Metadata   string `json:"metadata"`
	Additional struct {
		ID        string    `json:"id"`
		Certainty float64   `json:"certainty"`
		Vector    []float32 `json:"vector"`
	} `json:"_additional"`
}

// parseWeaviateHits decodes Get.<class> from a GraphQL response. Weaviate
// reports certainty in [0, 1]; it is mapped back to cosine similarity.
func parseWeaviateHits(data map[string]models.JSONObject, class string) ([]ScoredDocument, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode weaviate response: %w", err)
	}
	var body struct {
		Get map[string][]weaviateHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode weaviate response: %w", err)
	}
	hits := body.Get[class]
	out := make([]ScoredDocument, 0, len(hits))
	for _, h := range hits {
		d := Document{ID: h.Additional.ID, PageContent: h.Content}
		if h.Metadata != "" {
			if err := json.Unmarshal([]byte(h.Metadata), &d.Metadata); err != nil {
				return nil, fmt.Errorf("document %s: bad metadata: %w", d.ID, err)
			}
		}
		out = append(out, ScoredDocument{
			Document: d,
			Score:    2*h.Additional.Certainty - 1,
			Vector:   h.Additional.Vector,
		})
	}
	return out, nil
}

type weaviateClient struct {
	client *weaviate.Client
}

func (c *weaviateClient) insert(ctx context.Context, objects []*models.Object) error {
	resp, err := c.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save objects to weaviate: %w", err)
	}
	var msgs []string
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("weaviate batch errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (c *weaviateClient) nearVector(ctx context.Context, class string, vector []float32, k int, where *filters.WhereBuilder) (map[string]models.JSONObject, error) {
	nearVector := c.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	q := c.client.GraphQL().Get().
		WithClassName(class).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "metadata"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "id"},
				{Name: "certainty"},
				{Name: "vector"},
			}},
		).
		WithNearVector(nearVector).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", resp.Errors[0].Message)
	}
	return resp.Data, nil
}
