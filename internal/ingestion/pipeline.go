// Package ingestion implements the document ingestion pipeline: it chunks a
// document, embeds each chunk, and upserts the results into the vector
// store. It backs the /api/upload endpoint and the `ragbot ingest` command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/ragbot-go/internal/chunker"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// Document is one piece of text submitted for indexing.
type Document struct {
	// Text is the document body.
	Text string

	// ID namespaces the chunk IDs. When empty, a content hash is used so
	// re-ingesting identical text overwrites the same chunks.
	ID string

	// Source records where the text came from (file name, URL).
	Source string
}

// Result describes a completed ingestion.
type Result struct {
	// DocumentID is the namespace the chunk IDs were derived from.
	DocumentID string

	// ChunkCount is the number of chunks stored.
	ChunkCount int

	// IDs lists the stored chunk IDs in chunk order.
	IDs []string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of runes per chunk. When zero, 1000
	// is used and a zero ChunkOverlap becomes 100.
	ChunkSize int

	// ChunkOverlap is the maximum overlap between consecutive chunks, in runes.
	ChunkOverlap int

	// Concurrency is the number of chunks embedded and upserted at once.
	// Values below 2 process chunks strictly in order. Default: 1.
	Concurrency int

	// UpsertTimeout bounds each vector store write. Default: 30s.
	UpsertTimeout time.Duration

	// HTTPTimeout is the timeout for IngestURL fetches. Default: 30s.
	HTTPTimeout time.Duration

	// MaxFetchBytes caps the body size IngestURL will read. Default: 10 MiB.
	MaxFetchBytes int64

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the chunk → embed → upsert flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	splitter *chunker.Splitter
	cfg      Config
	fetcher  *fetcher
}

// NewPipeline constructs a Pipeline from the provided dependencies and
// config. A nil cfg selects the defaults.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = chunker.DefaultOverlap
		}
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.UpsertTimeout <= 0 {
		c.UpsertTimeout = 30 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = 10 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "ragbot-go/1.0 (document ingestion)"
	}

	splitter, err := chunker.New(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		splitter: splitter,
		cfg:      c,
		fetcher:  newFetcher(c.HTTPTimeout, c.UserAgent, c.MaxFetchBytes),
	}, nil
}

// ContentID returns the default document namespace for text: the first 16
// hex characters of its SHA-256 digest.
func ContentID(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:8])
}

// ChunkID returns the ID of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return documentID + "/chunk_" + strconv.Itoa(index)
}

// Ingest chunks doc.Text, then embeds and upserts every chunk. It returns
// only after every chunk is stored.
//
// Blank text fails with rag.ErrEmptyInput before any external call.
// Whitespace-only chunks are skipped and do not consume an index. When a
// chunk fails, no further chunks are started and chunks already stored are
// left in place; the returned *IngestError reports how many were stored and
// matches rag.ErrEmbeddingFailure or rag.ErrIndexFailure.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, rag.Errorf(rag.ErrEmptyInput, "ingest", "document text is blank")
	}

	docID := doc.ID
	if docID == "" {
		docID = ContentID(doc.Text)
	}

	var texts []string
	for _, c := range p.splitter.Split(doc.Text) {
		if strings.TrimSpace(c) != "" {
			texts = append(texts, c)
		}
	}

	chunks := make([]rag.Document, len(texts))
	ids := make([]string, len(texts))
	for i, t := range texts {
		ids[i] = ChunkID(docID, i)
		chunks[i] = rag.Document{
			ID:      ids[i],
			Content: t,
			Source:  doc.Source,
			Metadata: map[string]string{
				rag.MetaDocumentID: docID,
				rag.MetaChunkIndex: strconv.Itoa(i),
			},
		}
	}

	log := logging.FromContext(ctx).With(
		slog.String("document_id", docID),
		slog.Int("chunks", len(chunks)),
	)
	start := time.Now()

	var err error
	if p.cfg.Concurrency > 1 {
		err = p.storeParallel(ctx, docID, chunks)
	} else {
		err = p.storeSequential(ctx, docID, chunks)
	}
	if err != nil {
		log.Error("ingestion: document ingestion failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	log.Info("ingestion: document ingested",
		slog.String("source", doc.Source),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &Result{DocumentID: docID, ChunkCount: len(chunks), IDs: ids}, nil
}

func (p *Pipeline) storeSequential(ctx context.Context, docID string, chunks []rag.Document) error {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return &IngestError{DocumentID: docID, Index: i, Stored: i, Total: len(chunks), Err: err}
		}
		if err := p.storeChunk(ctx, chunks[i]); err != nil {
			return &IngestError{DocumentID: docID, Index: i, Stored: i, Total: len(chunks), Err: err}
		}
	}
	return nil
}

// storeParallel launches chunks in order on a bounded errgroup. After the
// first failure no new chunk is started. A launched chunk is skipped only
// when a lower-indexed chunk has already failed, so every chunk below the
// reported Index is stored. Chunks run against the caller's context so
// Stored is exact.
func (p *Pipeline) storeParallel(ctx context.Context, docID string, chunks []rag.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	var (
		mu      sync.Mutex
		done    = make([]bool, len(chunks))
		stored  int
		failIdx = -1
		failErr error
	)

	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			mu.Lock()
			skip := failIdx >= 0 && i > failIdx
			mu.Unlock()
			if skip {
				return nil
			}
			err := p.storeChunk(ctx, chunks[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failIdx < 0 || i < failIdx {
					failIdx, failErr = i, err
				}
				return err
			}
			done[i] = true
			stored++
			return nil
		})
	}
	_ = g.Wait()

	if failErr == nil && stored < len(chunks) {
		// The caller's context ended before any chunk failed.
		failIdx, failErr = slices.Index(done, false), ctx.Err()
	}
	if failErr != nil {
		return &IngestError{DocumentID: docID, Index: failIdx, Stored: stored, Total: len(chunks), Err: failErr}
	}
	return nil
}

// storeChunk embeds and upserts one chunk.
func (p *Pipeline) storeChunk(ctx context.Context, chunk rag.Document) error {
	vecs, err := p.embedder.Embed(ctx, []string{chunk.Content})
	if err != nil {
		return rag.Wrap(rag.ErrEmbeddingFailure, "ingest: embed chunk", err)
	}
	if len(vecs) != 1 {
		return rag.Errorf(rag.ErrEmbeddingFailure, "ingest: embed chunk", "expected 1 vector, got %d", len(vecs))
	}

	upCtx, cancel := context.WithTimeout(ctx, p.cfg.UpsertTimeout)
	defer cancel()
	if err := p.store.Upsert(upCtx, []rag.Document{chunk}, vecs); err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "ingest: upsert chunk", err)
	}
	return nil
}

// IngestError reports a partially completed ingestion.
type IngestError struct {
	// DocumentID is the namespace of the failed document.
	DocumentID string

	// Index is the first chunk that failed.
	Index int

	// Stored is the number of chunks successfully upserted. They remain in
	// the index.
	Stored int

	// Total is the number of chunks the document produced.
	Total int

	// Err is the classified cause.
	Err error
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	return fmt.Sprintf("ingestion: document %s: chunk %d of %d failed (%d stored): %v",
		e.DocumentID, e.Index, e.Total, e.Stored, e.Err)
}

// Unwrap returns the classified cause.
func (e *IngestError) Unwrap() error {
	return e.Err
}
