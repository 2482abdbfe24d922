package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 1}))
}

func runVectorStoreSuite(t *testing.T, vs VectorStore) {
	t.Helper()
	ctx := context.Background()

	docs := []Document{
		{ID: "a", PageContent: "alpha", Metadata: map[string]any{"category": "earnings"}},
		{ID: "b", PageContent: "beta", Metadata: map[string]any{"category": "product"}},
		{PageContent: "gamma", Metadata: map[string]any{"category": "earnings"}},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.8, 0.2, 0}}

	ids, err := vs.Add(ctx, docs, vectors)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "a", ids[0])
	assert.NotEmpty(t, ids[2], "missing IDs are generated")

	t.Run("ranked", func(t *testing.T) {
		hits, err := vs.Search(ctx, []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "alpha", hits[0].PageContent)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.Equal(t, "gamma", hits[1].PageContent)
		assert.Equal(t, []float32{1, 0, 0}, hits[0].Vector)
	})

	t.Run("filter", func(t *testing.T) {
		hits, err := vs.Search(ctx, []float32{0, 1, 0}, 10, Filter{"category": "earnings"})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Equal(t, "earnings", h.Meta("category"))
		}
	})

	t.Run("upsert", func(t *testing.T) {
		_, err := vs.Add(ctx, []Document{{ID: "b", PageContent: "beta v2"}}, [][]float32{{0, 1, 0}})
		require.NoError(t, err)
		hits, err := vs.Search(ctx, []float32{0, 1, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "beta v2", hits[0].PageContent)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := vs.Add(ctx, []Document{{PageContent: "x"}}, nil)
		assert.Error(t, err)
	})
}

func TestMemoryVectorStore(t *testing.T) {
	vs := NewMemoryVectorStore()
	runVectorStoreSuite(t, vs)
	assert.Equal(t, 3, vs.Len())

	_, err := vs.Search(context.Background(), []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = vs.Add(context.Background(), []Document{{}}, [][]float32{{1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteVectorStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	vs, err := NewSQLiteVectorStore(path, "news")
	require.NoError(t, err)
	runVectorStoreSuite(t, vs)
	require.NoError(t, vs.Close())

	t.Run("persistent and isolated by collection", func(t *testing.T) {
		again, err := NewSQLiteVectorStore(path, "news")
		require.NoError(t, err)
		defer again.Close()
		hits, err := again.Search(context.Background(), []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, hits, 3)

		other, err := NewSQLiteVectorStore(path, "papers")
		require.NoError(t, err)
		defer other.Close()
		hits, err = other.Search(context.Background(), []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{1.5, -2.25, 0}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

type fakeWeaviate struct {
	inserted []*models.Object
	where    *filters.WhereBuilder
	response map[string]models.JSONObject
}

func (f *fakeWeaviate) insert(_ context.Context, objects []*models.Object) error {
	f.inserted = append(f.inserted, objects...)
	return nil
}

func (f *fakeWeaviate) nearVector(_ context.Context, _ string, _ []float32, _ int, where *filters.WhereBuilder) (map[string]models.JSONObject, error) {
	f.where = where
	return f.response, nil
}

func TestWeaviateStore(t *testing.T) {
	backend := &fakeWeaviate{
		response: map[string]models.JSONObject{
			"Get": map[string]any{
				"Paper": []any{
					map[string]any{
						"content":  "attention",
						"metadata": `{"Title":"Attention"}`,
						"_additional": map[string]any{
							"id":        "5b6f1a1e-0000-4000-8000-000000000001",
							"certainty": 0.9,
							"vector":    []any{0.1, 0.2},
						},
					},
				},
			},
		},
	}
	vs := &WeaviateStore{class: "Paper", backend: backend}

	ids, err := vs.Add(context.Background(), []Document{
		{ID: "http://arxiv.org/abs/1706.03762v7", PageContent: "attention", Metadata: map[string]any{"Title": "Attention", "bad key": "x"}},
	}, [][]float32{{0.1, 0.2}})
	require.NoError(t, err)
	require.Len(t, backend.inserted, 1)

	obj := backend.inserted[0]
	assert.Equal(t, ids[0], obj.ID.String(), "non-UUID ids are mapped to a stable UUID")
	props := obj.Properties.(map[string]any)
	assert.Equal(t, "Attention", props["meta_Title"])
	assert.NotContains(t, props, "meta_bad key")

	again, err := vs.Add(context.Background(), []Document{{ID: "http://arxiv.org/abs/1706.03762v7"}}, [][]float32{{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, ids, again)

	hits, err := vs.Search(context.Background(), []float32{0.1, 0.2}, 3, Filter{"Title": "Attention"})
	require.NoError(t, err)
	require.NotNil(t, backend.where)
	require.Len(t, hits, 1)
	assert.Equal(t, "attention", hits[0].PageContent)
	assert.Equal(t, "Attention", hits[0].Meta("Title"))
	assert.InDelta(t, 0.8, hits[0].Score, 1e-9)
	assert.Equal(t, []float32{0.1, 0.2}, hits[0].Vector)

	_, err = vs.Search(context.Background(), []float32{1}, 1, Filter{"no spaces": "x"})
	assert.Error(t, err)
}
