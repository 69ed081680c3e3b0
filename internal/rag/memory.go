package rag

import (
	"context"
	"maps"
	"math"
	"slices"
	"sync"
)

// MemoryStore is a brute-force cosine similarity VectorStore held entirely
// in process memory. It backs tests and single-process deployments where no
// Qdrant instance is available. Contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]memoryEntry

	// dims is pinned by the first upsert; zero until then.
	dims int
}

type memoryEntry struct {
	doc    Document
	vector []float32
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Upsert stores or replaces documents by ID. Replacing a document keeps its
// original insertion position, which is the tie-breaker for equal scores.
func (s *MemoryStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return Errorf(ErrIndexFailure, "memory upsert", "%d documents but %d embeddings", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, vec := range embeddings {
		want := s.dims
		if want == 0 {
			want = len(embeddings[0])
		}
		if len(vec) == 0 || len(vec) != want {
			return Errorf(ErrIndexFailure, "memory upsert", "document %q: vector dimension %d, want %d", docs[i].ID, len(vec), want)
		}
	}

	for i, doc := range docs {
		if _, ok := s.entries[doc.ID]; !ok {
			s.order = append(s.order, doc.ID)
		}
		doc.Metadata = maps.Clone(doc.Metadata)
		doc.Score = 0
		s.entries[doc.ID] = memoryEntry{doc: doc, vector: slices.Clone(embeddings[i])}
	}
	if s.dims == 0 && len(embeddings) > 0 {
		s.dims = len(embeddings[0])
	}
	return nil
}

// Search scores every stored vector against the query and returns the
// topK best, highest score first.
func (s *MemoryStore) Search(_ context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dims != 0 && len(queryEmbedding) != s.dims {
		return nil, Errorf(ErrRetrievalFailure, "memory search", "query dimension %d, want %d", len(queryEmbedding), s.dims)
	}

	results := make([]Document, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		doc := e.doc
		doc.Metadata = maps.Clone(e.doc.Metadata)
		doc.Score = Cosine(queryEmbedding, e.vector)
		results = append(results, doc)
	}

	SortByScore(results)
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes documents by ID.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.entries, id)
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		_, ok := s.entries[id]
		return !ok
	})
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortByScore orders docs by descending Score. Equal scores keep their
// relative order.
func SortByScore(docs []Document) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}
