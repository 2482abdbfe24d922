package retrieval

import (
	"context"
	"fmt"
	"math"
)

// Search types understood by Retriever.
const (
	SearchSimilarity = "similarity"
	SearchMMR        = "mmr"
)

// SearchKwargs tunes a Retriever. Zero values fall back to k=4, fetch_k=20
// and lambda_mult=0.5. LambdaMult is a pointer so that 0 (pure diversity)
// can be configured.
type SearchKwargs struct {
	SearchType     string   `yaml:"search_type" json:"search_type,omitempty"`
	K              int      `yaml:"k" json:"k,omitempty"`
	FetchK         int      `yaml:"fetch_k" json:"fetch_k,omitempty"`
	LambdaMult     *float64 `yaml:"lambda_mult" json:"lambda_mult,omitempty"`
	ScoreThreshold float64  `yaml:"score_threshold" json:"score_threshold,omitempty"`
	Filter         Filter   `yaml:"filter" json:"filter,omitempty"`
}

// DefaultLambdaMult applies when LambdaMult is unset.
const DefaultLambdaMult = 0.5

// Lambda returns a LambdaMult value.
func Lambda(v float64) *float64 { return &v }

// Merge returns kw with every field set in override replacing its own.
func (kw SearchKwargs) Merge(override SearchKwargs) SearchKwargs {
	if override.SearchType != "" {
		kw.SearchType = override.SearchType
	}
	if override.K > 0 {
		kw.K = override.K
	}
	if override.FetchK > 0 {
		kw.FetchK = override.FetchK
	}
	if override.LambdaMult != nil {
		kw.LambdaMult = Lambda(*override.LambdaMult)
	}
	if override.ScoreThreshold > 0 {
		kw.ScoreThreshold = override.ScoreThreshold
	}
	if override.Filter != nil {
		kw.Filter = override.Filter
	}
	return kw
}

func (kw SearchKwargs) withDefaults() SearchKwargs {
	if kw.SearchType == "" {
		kw.SearchType = SearchSimilarity
	}
	if kw.K <= 0 {
		kw.K = 4
	}
	if kw.FetchK <= 0 {
		kw.FetchK = 20
	}
	if kw.FetchK < kw.K {
		kw.FetchK = kw.K
	}
	if kw.LambdaMult == nil {
		kw.LambdaMult = Lambda(DefaultLambdaMult)
	}
	return kw
}

// Retriever answers text queries from a VectorStore.
type Retriever struct {
	Store    VectorStore
	Embedder Embedder
	Kwargs   SearchKwargs
}

// NewRetriever returns a retriever over store using embedder for queries.
func NewRetriever(store VectorStore, embedder Embedder, kwargs SearchKwargs) *Retriever {
	return &Retriever{Store: store, Embedder: embedder, Kwargs: kwargs.withDefaults()}
}

// Invoke returns the documents most relevant to query.
func (r *Retriever) Invoke(ctx context.Context, query string) ([]Document, error) {
	hits, err := r.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	return docs, nil
}

// Index embeds docs and adds them to the store.
func (r *Retriever) Index(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vecs, err := r.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	return r.Store.Add(ctx, docs, vecs)
}

// Search is Invoke with scores.
func (r *Retriever) Search(ctx context.Context, query string) ([]ScoredDocument, error) {
	return r.SearchWith(ctx, query, SearchKwargs{})
}

// SearchWith searches with override merged over the retriever's kwargs.
func (r *Retriever) SearchWith(ctx context.Context, query string, override SearchKwargs) ([]ScoredDocument, error) {
	kw := r.Kwargs.Merge(override).withDefaults()
	vec, err := EmbedQuery(ctx, r.Embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []ScoredDocument
	switch kw.SearchType {
	case SearchSimilarity:
		hits, err = r.Store.Search(ctx, vec, kw.K, kw.Filter)
		if err != nil {
			return nil, err
		}
	case SearchMMR:
		candidates, err := r.Store.Search(ctx, vec, kw.FetchK, kw.Filter)
		if err != nil {
			return nil, err
		}
		hits = MaxMarginalRelevance(vec, candidates, *kw.LambdaMult, kw.K)
	default:
		return nil, fmt.Errorf("unknown search_type %q", kw.SearchType)
	}

	if kw.ScoreThreshold > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= kw.ScoreThreshold {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	return hits, nil
}

// MaxMarginalRelevance picks k candidates balancing similarity to query
// against similarity to the already selected ones. lambda 1 is pure
// relevance, 0 pure diversity. Candidates without vectors are ranked by
// Score alone.
func MaxMarginalRelevance(query []float32, candidates []ScoredDocument, lambda float64, k int) []ScoredDocument {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if c.Vector != nil {
			relevance[i] = Cosine(query, c.Vector)
		} else {
			relevance[i] = c.Score
		}
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = math.Inf(-1)
				for _, j := range selected {
					redundancy = math.Max(redundancy, Cosine(candidates[i].Vector, candidates[j].Vector))
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		selected = append(selected, best)
	}

	out := make([]ScoredDocument, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}
