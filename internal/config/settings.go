package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by VECTOR_STORE.
const (
	StoreQdrant = "qdrant"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Settings are the pipeline tunables resolved from the environment after
// Load and LoadDotEnv have run. Zero values mean "use the component default".
type Settings struct {
	// VectorStore is the index backend. Default: qdrant when QDRANT_HOST is
	// set, otherwise sqlite.
	VectorStore string

	// SQLitePath is the sqlite index file. Empty selects the default path.
	SQLitePath string

	ChunkSize         int
	ChunkOverlap      int
	TopK              int
	IngestConcurrency int
	MaxContextTokens  int

	EmbedTimeout    time.Duration
	QueryTimeout    time.Duration
	UpsertTimeout   time.Duration
	GenerateTimeout time.Duration

	// Host and Port are the HTTP bind address (RAGBOT_HOST, RAGBOT_PORT).
	// Default: 127.0.0.1:8080.
	Host string
	Port int
}

// SettingsFromEnv reads Settings from the environment. Every malformed value
// is reported in the returned error.
func SettingsFromEnv() (*Settings, error) {
	var errs []error
	intVar := func(key string) int {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("config: %s must be a non-negative integer, got %q", key, v))
			return 0
		}
		return n
	}
	durVar := func(key string) time.Duration {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return 0
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("config: %s must be a duration like 30s, got %q", key, v))
			return 0
		}
		return d
	}

	s := &Settings{
		VectorStore:       strings.ToLower(strings.TrimSpace(os.Getenv("VECTOR_STORE"))),
		SQLitePath:        os.Getenv("SQLITE_INDEX_PATH"),
		ChunkSize:         intVar("CHUNK_SIZE"),
		ChunkOverlap:      intVar("CHUNK_OVERLAP"),
		TopK:              intVar("RAG_TOP_K"),
		IngestConcurrency: intVar("INGEST_CONCURRENCY"),
		MaxContextTokens:  intVar("MAX_CONTEXT_TOKENS"),
		EmbedTimeout:      durVar("EMBED_TIMEOUT"),
		QueryTimeout:      durVar("QUERY_TIMEOUT"),
		UpsertTimeout:     durVar("UPSERT_TIMEOUT"),
		GenerateTimeout:   durVar("GENERATE_TIMEOUT"),
	}

	switch s.VectorStore {
	case "":
		s.VectorStore = StoreSQLite
		if os.Getenv("QDRANT_HOST") != "" {
			s.VectorStore = StoreQdrant
		}
	case StoreQdrant, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("config: VECTOR_STORE must be one of qdrant, sqlite, memory, got %q", s.VectorStore))
	}

	if s.ChunkSize > 0 && s.ChunkOverlap >= s.ChunkSize {
		errs = append(errs, fmt.Errorf("config: CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", s.ChunkOverlap, s.ChunkSize))
	}

	s.Host = os.Getenv("RAGBOT_HOST")
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port = intVar("RAGBOT_PORT"); s.Port == 0 {
		s.Port = 8080
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}
