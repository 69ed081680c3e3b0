// Package rag defines the collaborator contracts of the question answering
// pipeline: vector storage, embedding, and retrieval. Concrete backends
// (Qdrant, SQLite, in-memory) satisfy these interfaces so the ingestion and
// answering pipelines never depend on a specific service.
package rag

import (
	"context"
)

// Payload keys written alongside every stored vector.
const (
	MetaText       = "text"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaSource     = "source"
)

// Document is one indexed chunk, either on its way into a store or coming
// back out of a search.
type Document struct {
	// ID is the chunk identifier, unique across the index
	// (e.g. "3f2a9c0d1e4b5a67/chunk_0").
	ID string

	// Content is the chunk text. It is stored as the "text" payload field.
	Content string

	// Source is the origin of the parent document (file name, URL).
	Source string

	// Metadata holds the remaining payload fields (document_id, chunk_index).
	Metadata map[string]string

	// Score is the similarity to the query, set only on search results.
	// Higher is more similar.
	Score float32
}

// VectorStore persists chunk vectors and answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces a batch of documents by ID.
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents most similar to queryEmbedding,
	// best match first.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the chunks most relevant to a natural-language query.
type Retriever interface {
	// Retrieve returns up to topK documents ordered by descending score.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
