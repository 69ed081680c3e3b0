package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// RetrieverConfig holds the tunables for a DefaultRetriever.
type RetrieverConfig struct {
	// DefaultTopK is the number of results returned when Retrieve is called
	// with topK <= 0 (default: 3).
	DefaultTopK int

	// QueryTimeout bounds each vector store search (default: 30s).
	// The embedding call is bounded by the embedder itself.
	QueryTimeout time.Duration
}

// DefaultRetriever implements Retriever by embedding the query and
// delegating similarity search to a VectorStore.
type DefaultRetriever struct {
	embedder Embedder
	store    VectorStore
	cfg      RetrieverConfig
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and
// VectorStore. A nil cfg selects the defaults.
func NewRetriever(embedder Embedder, store VectorStore, cfg *RetrieverConfig) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	var c RetrieverConfig
	if cfg != nil {
		c = *cfg
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 3
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	return &DefaultRetriever{embedder: embedder, store: store, cfg: c}, nil
}

// Retrieve embeds the query and returns the top-k most relevant documents,
// best first. Embedding failures keep their ErrEmbeddingFailure kind; store
// failures are reported as ErrRetrievalFailure. An index with no matches
// yields an empty slice and no error.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Errorf(ErrEmptyInput, "retrieve", "query is blank")
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, Wrap(ErrEmbeddingFailure, "retrieve: embed query", err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return nil, Errorf(ErrEmbeddingFailure, "retrieve: embed query", "embedder returned no vector for query")
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	docs, err := r.store.Search(searchCtx, embeddings[0], topK)
	if err != nil {
		logging.FromContext(ctx).Error("rag: vector search failed",
			slog.Int("top_k", topK),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, Wrap(ErrRetrievalFailure, "retrieve: search", err)
	}

	SortByScore(docs)
	if len(docs) > topK {
		docs = docs[:topK]
	}

	logging.FromContext(ctx).Debug("rag: retrieved context",
		slog.Int("top_k", topK),
		slog.Int("matches", len(docs)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return docs, nil
}
