//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragbot-go/internal/rag"
)

// TestOllamaEmbedder_Integration calls a running Ollama server. Related
// sentences must score closer than unrelated ones.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
	model := getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)

	g := NewGuarded(NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}), &GuardConfig{Backend: "ollama"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vecs, err := g.Embed(ctx, []string{
		"Rockets launch from the pad at dawn.",
		"The spacecraft lifted off early in the morning.",
		"Sourdough needs a long, slow fermentation.",
	})
	require.NoError(t, err, "is Ollama running at %s with %q pulled?", host, model)
	require.Len(t, vecs, 3)

	dims := len(vecs[0])
	assert.Positive(t, dims)
	assert.Equal(t, dims, g.Dimensions())
	if os.Getenv("EMBEDDING_DIMENSIONS") == "" {
		t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for a Qdrant collection)", model, dims, dims)
	}

	related := rag.Cosine(vecs[0], vecs[1])
	unrelated := rag.Cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}
