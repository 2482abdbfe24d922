package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when a vector does not match the
// dimension of the collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Filter restricts a search to documents whose metadata equals every
// key/value pair. A nil filter matches everything.
type Filter map[string]string

// Matches reports whether d satisfies the filter.
func (f Filter) Matches(d Document) bool {
	for k, v := range f {
		if d.Meta(k) != v {
			return false
		}
	}
	return true
}

// ScoredDocument is a search hit. Score is cosine similarity in [-1, 1].
type ScoredDocument struct {
	Document
	Score  float64   `json:"score"`
	Vector []float32 `json:"-"`
}

// VectorStore persists embedded documents and answers nearest-neighbour
// queries.
type VectorStore interface {
	// Add stores docs with their vectors and returns the assigned IDs.
	// Documents without an ID receive a random UUID.
	Add(ctx context.Context, docs []Document, vectors [][]float32) ([]string, error)
	// Search returns at most k documents ordered by descending score.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredDocument, error)
}

// MemoryVectorStore is a brute-force cosine store held in memory.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	dim     int
	ids     []string
	docs    map[string]Document
	vectors map[string][]float32
}

// NewMemoryVectorStore returns an empty store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		docs:    map[string]Document{},
		vectors: map[string][]float32{},
	}
}

// Add implements VectorStore. Re-adding an ID replaces the document.
func (s *MemoryVectorStore) Add(_ context.Context, docs []Document, vectors [][]float32) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("got %d documents and %d vectors", len(docs), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(docs))
	for i, d := range docs {
		if s.dim == 0 {
			s.dim = len(vectors[i])
		}
		if len(vectors[i]) != s.dim {
			return ids[:i], fmt.Errorf("document %d: %w (got %d, want %d)", i, ErrDimensionMismatch, len(vectors[i]), s.dim)
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if _, exists := s.docs[d.ID]; !exists {
			s.ids = append(s.ids, d.ID)
		}
		s.docs[d.ID] = d
		s.vectors[d.ID] = append([]float32(nil), vectors[i]...)
		ids[i] = d.ID
	}
	return ids, nil
}

// Search implements VectorStore.
func (s *MemoryVectorStore) Search(_ context.Context, vector []float32, k int, filter Filter) ([]ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("query: %w (got %d, want %d)", ErrDimensionMismatch, len(vector), s.dim)
	}
	hits := make([]ScoredDocument, 0, len(s.ids))
	for _, id := range s.ids {
		d := s.docs[id]
		if !filter.Matches(d) {
			continue
		}
		v := s.vectors[id]
		hits = append(hits, ScoredDocument{Document: d, Score: Cosine(vector, v), Vector: v})
	}
	return topK(hits, k), nil
}

// Len returns the number of stored documents.
func (s *MemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts hits by descending score (stable, so insertion order breaks
// ties) and keeps the first k. k <= 0 keeps everything.
func topK(hits []ScoredDocument, k int) []ScoredDocument {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
