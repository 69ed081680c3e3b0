package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragbot-go/internal/rag"
)

// stubEmbedder returns a fixed-size vector per input or a canned error.
type stubEmbedder struct {
	dims  int
	err   error
	calls int
	delay time.Duration
	short bool
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	n := len(texts)
	if s.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dims)
		if s.dims > 0 {
			out[i][0] = float32(len(texts[i]))
		}
	}
	return out, nil
}

func TestGuarded_RejectsBlankInput(t *testing.T) {
	t.Parallel()
	for name, texts := range map[string][]string{
		"nil":        nil,
		"empty":      {},
		"blank item": {"hello", "  \n"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			inner := &stubEmbedder{dims: 4}
			_, err := NewGuarded(inner, nil).Embed(context.Background(), texts)
			assert.ErrorIs(t, err, rag.ErrEmptyInput)
			assert.Zero(t, inner.calls, "backend must not be called")
		})
	}
}

func TestGuarded_PinsDimensions(t *testing.T) {
	t.Parallel()
	inner := &stubEmbedder{dims: 4}
	g := NewGuarded(inner, &GuardConfig{Backend: "stub"})

	vecs, err := g.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 4, g.Dimensions())

	inner.dims = 8
	_, err = g.Embed(context.Background(), []string{"c"})
	assert.ErrorIs(t, err, rag.ErrEmbeddingFailure)
	assert.Equal(t, 4, g.Dimensions())
}

func TestGuarded_ConfiguredDimensions(t *testing.T) {
	t.Parallel()
	g := NewGuarded(&stubEmbedder{dims: 3}, &GuardConfig{Dimensions: 768})
	_, err := g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, rag.ErrEmbeddingFailure)
}

func TestGuarded_ClassifiesFailures(t *testing.T) {
	t.Parallel()
	cases := map[string]*stubEmbedder{
		"backend error": {dims: 4, err: errors.New("connection refused")},
		"short result":  {dims: 4, short: true},
		"empty vector":  {dims: 0},
	}
	for name, inner := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGuarded(inner, nil).Embed(context.Background(), []string{"a", "b"})
			assert.ErrorIs(t, err, rag.ErrEmbeddingFailure)
		})
	}
}

func TestGuarded_Timeout(t *testing.T) {
	t.Parallel()
	g := NewGuarded(&stubEmbedder{dims: 4, delay: time.Second}, &GuardConfig{Timeout: 10 * time.Millisecond})
	_, err := g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, rag.ErrEmbeddingFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaEmbedder_HTTP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	vecs, err := e.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestOllamaEmbedder_ErrorBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: `model "nope" not found`})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nope"}).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestOpenAIEmbedder_AzureURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/embed-small/embeddings", r.URL.Path)
		assert.Equal(t, "2025-04-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azkey", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "azkey",
		Model:      "embed-small",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	_, err := e.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestResolveBackend(t *testing.T) {
	cases := []struct {
		embedding, model, want string
	}{
		{"", "", "ollama"},
		{"", "openai", "openai"},
		{"", "ark", "ollama"},
		{"gemini", "openai", "gemini"},
	}
	for _, tc := range cases {
		t.Setenv("EMBEDDING_PROVIDER", tc.embedding)
		t.Setenv("MODEL_PROVIDER", tc.model)
		assert.Equal(t, tc.want, ResolveBackend(), "EMBEDDING_PROVIDER=%q MODEL_PROVIDER=%q", tc.embedding, tc.model)
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	assert.Equal(t, 768, DefaultDimensions("ollama"))
	assert.Equal(t, 1536, DefaultDimensions("openai"))
	assert.Equal(t, 768, DefaultDimensions("gemini"))

	t.Setenv("EMBEDDING_DIMENSIONS", "384")
	assert.Equal(t, 384, DefaultDimensions("ollama"))
}

func TestValidateForRAG(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	assert.Error(t, ValidateForRAG(log))

	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.NoError(t, ValidateForRAG(log))

	t.Setenv("EMBEDDING_PROVIDER", "bogus")
	assert.Error(t, ValidateForRAG(log))
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	assert.True(t, looksLikeChatModel("llama3:8b"))
	assert.True(t, looksLikeChatModel("gpt-4o"))
	assert.False(t, looksLikeChatModel("nomic-embed-text"))
	assert.False(t, looksLikeChatModel("text-embedding-3-small"))
	assert.False(t, looksLikeChatModel("gemini-embedding-001"))
}

func TestOpenAIEmbedder_ErrorEnvelope(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"}).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestHTTPEmbedders_NonJSONError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "m"}).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestHTTPEmbedders_EmptyBatch(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	defer srv.Close()

	vecs, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL}).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	vecs, err = NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, hits)
}

func TestOpenAIEmbedder_DuplicateIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, Model: "m"}).Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate index")
}
