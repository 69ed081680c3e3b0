package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// unsortedStore returns canned results in the given order, or blocks until
// the context is done when block is set.
type unsortedStore struct {
	MemoryStore
	results []Document
	err     error
	block   bool
}

func (s *unsortedStore) Search(ctx context.Context, _ []float32, _ int) ([]Document, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.results, s.err
}

func TestWrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	err := Wrap(ErrIndexFailure, "upsert", cause)

	if !errors.Is(err, ErrIndexFailure) || !errors.Is(err, cause) {
		t.Fatalf("Wrap() lost kind or cause: %v", err)
	}
	if Wrap(ErrIndexFailure, "outer", err) != err {
		t.Error("Wrap() must not double-wrap an error of the same kind")
	}
	if Wrap(ErrIndexFailure, "noop", nil) != nil {
		t.Error("Wrap(nil) must return nil")
	}
	if KindOf(fmt.Errorf("ctx: %w", err)) != ErrIndexFailure {
		t.Error("KindOf() must see through fmt wrapping")
	}
	if KindOf(cause) != nil {
		t.Error("KindOf() of an unclassified error must be nil")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{Errorf(ErrEmptyInput, "x", "blank"), false},
		{Errorf(ErrInvalidInput, "x", "too short"), false},
		{Errorf(ErrEmbeddingFailure, "x", "down"), true},
		{Errorf(ErrGenerationFailure, "x", "down"), true},
		{Wrap(ErrRetrievalFailure, "x", context.DeadlineExceeded), true},
		{errors.New("plain"), false},
	}
	for _, tc := range tests {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestMemoryStore_SearchOrdering(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	docs := []Document{{ID: "a", Content: "a"}, {ID: "b", Content: "b"}, {ID: "c", Content: "c"}, {ID: "d", Content: "d"}}
	vecs := [][]float32{{0, 1}, {1, 0}, {1, 0}, {0.7, 0.7}}
	if err := s.Upsert(ctx, docs, vecs); err != nil {
		t.Fatalf("Upsert() = %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	// b and c tie; insertion order breaks the tie.
	if ids[0] != "b" || ids[1] != "c" || ids[2] != "d" {
		t.Errorf("Search() order = %v, want [b c d]", ids)
	}
}

func TestMemoryStore_UpsertReplacesAndDelete(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Upsert(ctx, []Document{{ID: "a", Content: "old"}}, [][]float32{{1, 0}})
	_ = s.Upsert(ctx, []Document{{ID: "a", Content: "new"}}, [][]float32{{1, 0}})
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	got, _ := s.Search(ctx, []float32{1, 0}, 1)
	if got[0].Content != "new" {
		t.Errorf("Content = %q, want replaced value", got[0].Content)
	}

	if err := s.Delete(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", s.Len())
	}
}

func TestMemoryStore_RejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Upsert(ctx, []Document{{ID: "a"}}, [][]float32{{1, 0, 0}})

	if err := s.Upsert(ctx, []Document{{ID: "b"}}, [][]float32{{1, 0}}); !errors.Is(err, ErrIndexFailure) {
		t.Errorf("Upsert() = %v, want ErrIndexFailure", err)
	}
	if _, err := s.Search(ctx, []float32{1}, 1); !errors.Is(err, ErrRetrievalFailure) {
		t.Errorf("Search() = %v, want ErrRetrievalFailure", err)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got < 0.9999 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector: %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch: %v", got)
	}
}

func TestRetriever_SortsAndTruncates(t *testing.T) {
	t.Parallel()
	store := &unsortedStore{results: []Document{
		{ID: "low", Score: 0.1},
		{ID: "high", Score: 0.9},
		{ID: "mid", Score: 0.5},
		{ID: "extra", Score: 0.05},
	}}
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, &RetrieverConfig{DefaultTopK: 3})
	if err != nil {
		t.Fatalf("NewRetriever() = %v", err)
	}

	got, err := r.Retrieve(context.Background(), "question", 0)
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}
	if len(got) != 3 || got[0].ID != "high" || got[1].ID != "mid" || got[2].ID != "low" {
		t.Errorf("Retrieve() = %+v, want [high mid low]", got)
	}
}

func TestRetriever_ErrorKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		embedder Embedder
		store    *unsortedStore
		cfg      *RetrieverConfig
		query    string
		want     error
	}{
		{"blank query", &fakeEmbedder{vec: []float32{1}}, &unsortedStore{}, nil, "  ", ErrEmptyInput},
		{"embed failure", &fakeEmbedder{err: errors.New("down")}, &unsortedStore{}, nil, "q", ErrEmbeddingFailure},
		{"search failure", &fakeEmbedder{vec: []float32{1}}, &unsortedStore{err: errors.New("grpc unavailable")}, nil, "q", ErrRetrievalFailure},
		{"search timeout", &fakeEmbedder{vec: []float32{1}}, &unsortedStore{block: true}, &RetrieverConfig{QueryTimeout: 10 * time.Millisecond}, "q", context.DeadlineExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := NewRetriever(tc.embedder, tc.store, tc.cfg)
			_, err := r.Retrieve(context.Background(), tc.query, 3)
			if !errors.Is(err, tc.want) {
				t.Errorf("Retrieve() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewRetriever_NilDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewRetriever(nil, NewMemoryStore(), nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestPointID_Deterministic(t *testing.T) {
	t.Parallel()
	a, b := PointID("doc/chunk_0"), PointID("doc/chunk_0")
	if a != b {
		t.Errorf("PointID not deterministic: %s != %s", a, b)
	}
	if PointID("doc/chunk_1") == a {
		t.Error("distinct chunk IDs must map to distinct point IDs")
	}
}
