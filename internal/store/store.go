// Package store provides a SQLite-backed vector index. Chunk text, payload
// and embedding are persisted in a single table so the index survives
// restarts without an external vector database. Search is an exact
// brute-force cosine scan, which suits indexes of up to a few hundred
// thousand chunks.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragbot-go/internal/rag"
)

// SQLiteIndex is a rag.VectorStore backed by a local SQLite database.
type SQLiteIndex struct {
	db *sql.DB
}

var _ rag.VectorStore = (*SQLiteIndex)(nil)

// DefaultDBPath returns the default index location, ~/.ragbot/index.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// Open opens (or creates) a SQLiteIndex at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteIndex, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL DEFAULT '',
    source       TEXT    NOT NULL DEFAULT '',
    content      TEXT    NOT NULL,
    metadata     TEXT    NOT NULL DEFAULT '{}',  -- JSON object of string values
    dims         INTEGER NOT NULL,
    vector       BLOB    NOT NULL,               -- little-endian float32
    updated_at   INTEGER NOT NULL                -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable. It satisfies the server's
// readiness probe contract.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert stores or replaces documents by ID inside a single transaction.
// Every vector must match the dimensionality already present in the index.
func (s *SQLiteIndex) Upsert(ctx context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return rag.Errorf(rag.ErrIndexFailure, "sqlite upsert", "%d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "sqlite upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Read inside the transaction so concurrent first writers cannot both
	// fix a different dimensionality.
	dims, err := dimensions(ctx, tx)
	if err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "sqlite upsert", err)
	}
	if dims == 0 {
		dims = len(embeddings[0])
	}
	for i, v := range embeddings {
		if len(v) == 0 || len(v) != dims {
			return rag.Errorf(rag.ErrIndexFailure, "sqlite upsert", "document %q: vector dimension %d, want %d", docs[i].ID, len(v), dims)
		}
	}

	const q = `
INSERT INTO chunks (id, document_id, source, content, metadata, dims, vector, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    document_id = excluded.document_id,
    source      = excluded.source,
    content     = excluded.content,
    metadata    = excluded.metadata,
    dims        = excluded.dims,
    vector      = excluded.vector,
    updated_at  = excluded.updated_at`

	now := time.Now().Unix()
	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return rag.Wrap(rag.ErrIndexFailure, "sqlite upsert", err)
		}
		if _, err := tx.ExecContext(ctx, q,
			doc.ID, doc.Metadata[rag.MetaDocumentID], doc.Source, doc.Content,
			string(meta), dims, encodeVector(embeddings[i]), now,
		); err != nil {
			return rag.Wrap(rag.ErrIndexFailure, "sqlite upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "sqlite upsert", err)
	}
	return nil
}

// Search scans every stored vector and returns the topK most similar
// documents, best first. Ties keep insertion order.
func (s *SQLiteIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Document, error) {
	const q = `SELECT id, source, content, metadata, vector FROM chunks ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, rag.Wrap(rag.ErrRetrievalFailure, "sqlite search", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var (
			doc  rag.Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.Content, &meta, &blob); err != nil {
			return nil, rag.Wrap(rag.ErrRetrievalFailure, "sqlite search scan", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, rag.Wrap(rag.ErrRetrievalFailure, "sqlite search decode", err)
		}
		if len(vec) != len(queryEmbedding) {
			return nil, rag.Errorf(rag.ErrRetrievalFailure, "sqlite search", "query dimension %d, index dimension %d", len(queryEmbedding), len(vec))
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, rag.Wrap(rag.ErrRetrievalFailure, "sqlite search decode", err)
		}
		doc.Score = rag.Cosine(queryEmbedding, vec)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Wrap(rag.ErrRetrievalFailure, "sqlite search rows", err)
	}

	rag.SortByScore(docs)
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

// Delete removes documents by ID.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "sqlite delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return rag.Wrap(rag.ErrIndexFailure, "sqlite delete", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return rag.Wrap(rag.ErrIndexFailure, "sqlite delete", err)
	}
	return nil
}

// DocumentChunks returns the chunk IDs stored for a document, in ID order.
func (s *SQLiteIndex) DocumentChunks(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ? ORDER BY rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: document chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: document chunks scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: document chunks rows: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// dimensions returns the vector size already stored, or 0 for an empty index.
// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func dimensions(ctx context.Context, q queryRower) (int, error) {
	var dims int
	err := q.QueryRowContext(ctx, `SELECT dims FROM chunks LIMIT 1`).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: dimensions: %w", err)
	}
	return dims, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("store: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
