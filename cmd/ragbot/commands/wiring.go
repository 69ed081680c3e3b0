package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/embedder"
	"github.com/54b3r/ragbot-go/internal/ingestion"
	"github.com/54b3r/ragbot-go/internal/provider"
	"github.com/54b3r/ragbot-go/internal/qa"
	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/server"
	"github.com/54b3r/ragbot-go/internal/store"
	"github.com/54b3r/ragbot-go/internal/version"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION is unset.
const defaultCollection = "ragbot-docs"

// stack is the embedder and vector index shared by the ingest and query paths.
type stack struct {
	settings *config.Settings
	backend  string
	inner    rag.Embedder
	embedder *embedder.Guarded
	store    rag.VectorStore
	pingers  []server.Pinger
}

// openStack builds the guarded embedder and opens the configured vector
// index. The caller must Close the returned stack.
func openStack(ctx context.Context, log *slog.Logger, s *config.Settings) (*stack, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}

	backend := embedder.ResolveBackend()
	inner, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	// Dimensions are pinned up front only when something downstream depends
	// on them before the first call (Qdrant collection creation, or an
	// explicit EMBEDDING_DIMENSIONS).
	dims := 0
	if s.VectorStore == config.StoreQdrant || os.Getenv("EMBEDDING_DIMENSIONS") != "" {
		dims = embedder.DefaultDimensions(backend)
	}
	st := &stack{
		settings: s,
		backend:  backend,
		inner:    inner,
		embedder: embedder.NewGuarded(inner, &embedder.GuardConfig{
			Backend:    backend,
			Timeout:    s.EmbedTimeout,
			Dimensions: dims,
		}),
	}
	log.Info("embedder initialised", slog.String("backend", backend), slog.Int("dimensions", dims))

	if o, ok := inner.(*embedder.OllamaEmbedder); ok {
		st.pingers = append(st.pingers, server.NewHTTPPinger("embedder", strings.TrimRight(o.Host(), "/")+"/api/tags"))
	}

	switch s.VectorStore {
	case config.StoreQdrant:
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		st.store = qs
		st.pingers = append(st.pingers, server.NewQdrantPinger(qs.Client()))
		log.Info("qdrant store ready", slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))

	case config.StoreSQLite:
		path := s.SQLitePath
		if path == "" {
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve sqlite index path: %w", err)
			}
		}
		idx, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite index: %w", err)
		}
		st.store = idx
		st.pingers = append(st.pingers, server.NewFuncPinger("sqlite", idx.Ping))
		log.Info("sqlite index ready", slog.String("path", path))

	default:
		st.store = rag.NewMemoryStore()
		log.Warn("in-memory index selected, documents are lost on exit")
	}

	return st, nil
}

// Close releases the vector index.
func (st *stack) Close() error {
	return st.store.Close()
}

// ingester builds the ingestion pipeline over the stack.
func (st *stack) ingester() (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(st.embedder, st.store, &ingestion.Config{
		ChunkSize:     st.settings.ChunkSize,
		ChunkOverlap:  st.settings.ChunkOverlap,
		Concurrency:   st.settings.IngestConcurrency,
		UpsertTimeout: st.settings.UpsertTimeout,
		UserAgent:     "ragbot/" + version.Version,
	})
}

// answerer builds the question-answering pipeline over the stack.
func (st *stack) answerer(llm qa.Completer) (*qa.Answerer, error) {
	retriever, err := rag.NewRetriever(st.embedder, st.store, &rag.RetrieverConfig{
		DefaultTopK:  st.settings.TopK,
		QueryTimeout: st.settings.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}
	return qa.NewAnswerer(retriever, llm, &qa.AnswererConfig{
		DefaultTopK:      st.settings.TopK,
		MaxContextTokens: st.settings.MaxContextTokens,
	})
}

// newGenerator builds the chat model selected by MODEL_PROVIDER. The second
// return value is a readiness probe for local providers, or nil.
func newGenerator(ctx context.Context, log *slog.Logger, s *config.Settings) (*provider.Generator, server.Pinger, error) {
	chatModel, cfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	gen, err := provider.NewGenerator(chatModel, &provider.GeneratorConfig{
		Timeout:         s.GenerateTimeout,
		OmitTemperature: !cfg.SupportsTemperature(),
		Model:           cfg.ModelName(),
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)

	var pinger server.Pinger
	if cfg.Backend == provider.BackendOllama {
		pinger = server.NewHTTPPinger("model", strings.TrimRight(cfg.Ollama.Host, "/")+"/api/tags")
	}
	return gen, pinger, nil
}

// getEnvOrDefault returns the value of key, or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns key parsed as an int, or fallback when unset or invalid.
func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
