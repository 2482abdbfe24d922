package stock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/retrieval"
)

// wordEmbedder counts a few topic words so headlines about the same topic
// land close together.
func wordEmbedder() retrieval.EmbedderFunc {
	vocab := []string{"earnings", "chip", "lawsuit", "cloud"}
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := make([]float32, len(vocab)+1)
			for j, w := range vocab {
				v[j] = float32(strings.Count(strings.ToLower(text), w))
			}
			v[len(vocab)] = 0.1
			out[i] = v
		}
		return out, nil
	}
}

func TestCategorizeNews(t *testing.T) {
	tests := []struct {
		title, summary, want string
	}{
		{"Apple reports record quarterly earnings", "Revenue beat guidance", "earnings"},
		{"CEO to launch", "", "product"},
		{"Hello world", "", "general"},
		{"Firm settles SEC lawsuit", "legal costs", "regulatory"},
		{"New cloud software platform", "", "technology"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeNews(tt.title, tt.summary))
		})
	}
}

func TestGetMarketNews(t *testing.T) {
	published := time.Date(2024, 5, 30, 9, 30, 0, 0, time.UTC)
	raw := []RawNews{
		{Title: "Acme beats earnings", Publisher: "Wire", Link: "https://news/1", Published: published},
		{Title: "   "},
		{Title: "Acme unveils chip"},
	}
	for i := 0; i < 25; i++ {
		raw = append(raw, RawNews{Title: "filler"})
	}
	r := newTestRetriever(t, &fakeMarket{news: raw})

	items := r.GetMarketNews(context.Background(), "acme")
	require.Len(t, items, 20)
	assert.Equal(t, NewsItem{
		Title: "Acme beats earnings", Publisher: "Wire", Link: "https://news/1",
		Published: "2024-05-30 09:30:00", Category: "earnings",
	}, items[0])
	assert.Equal(t, "Unknown", items[1].Publisher)
	assert.Equal(t, "#", items[1].Link)
	assert.Equal(t, "2024-06-01 12:00:00", items[1].Published)
	assert.Equal(t, "product", items[1].Category)
}

func TestGetMarketNews_Fallbacks(t *testing.T) {
	empty := newTestRetriever(t, &fakeMarket{news: []RawNews{{Title: ""}}})
	items := empty.GetMarketNews(context.Background(), "ACME")
	require.Len(t, items, 1)
	assert.Equal(t, "No recent news available", items[0].Title)
	assert.Equal(t, "system", items[0].Category)
	assert.Equal(t, "System", items[0].Publisher)

	failing := newTestRetriever(t, &fakeMarket{newsErr: errors.New("timeout")})
	items = failing.GetMarketNews(context.Background(), "ACME")
	require.Len(t, items, 1)
	assert.Equal(t, "Unable to fetch news", items[0].Title)
}

func TestNewsIndex(t *testing.T) {
	store := retrieval.NewMemoryVectorStore()
	r := newTestRetriever(t, &fakeMarket{}, WithNewsIndex(retrieval.NewRetriever(store, wordEmbedder(), retrieval.SearchKwargs{})))
	ctx := context.Background()

	items := []NewsItem{
		{Title: "Acme earnings beat", Summary: "earnings up", Category: "earnings"},
		{Title: "Acme chip launch", Summary: "new chip", Category: "product"},
		{Title: "Rival earnings miss", Category: "earnings"},
		{Title: "No recent news available", Category: "system"},
	}
	require.NoError(t, r.IndexNews(ctx, items))
	assert.Equal(t, 3, store.Len(), "system notices are not indexed")

	related := r.SearchRelatedNews(ctx, "earnings season", 5)
	require.Len(t, related, 2)
	for _, n := range related {
		assert.Equal(t, "earnings", n.Category)
	}

	byCat := r.NewsByCategory(ctx, "product")
	require.Len(t, byCat, 1)
	assert.Equal(t, "Acme chip launch", byCat[0].Title)
}

func TestNewsIndex_Disabled(t *testing.T) {
	r := newTestRetriever(t, &fakeMarket{})
	require.NoError(t, r.IndexNews(context.Background(), []NewsItem{{Title: "x"}}))
	assert.Empty(t, r.SearchRelatedNews(context.Background(), "x", 3))
	assert.Empty(t, r.NewsByCategory(context.Background(), "earnings"))
}

func TestNewsIndex_EmbedFailure(t *testing.T) {
	boom := retrieval.EmbedderFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("quota")
	})
	r := newTestRetriever(t, &fakeMarket{}, WithNewsIndex(retrieval.NewRetriever(retrieval.NewMemoryVectorStore(), boom, retrieval.SearchKwargs{})))
	assert.Error(t, r.IndexNews(context.Background(), []NewsItem{{Title: "x", Category: "general"}}))
	assert.Empty(t, r.SearchRelatedNews(context.Background(), "x", 3))
}
