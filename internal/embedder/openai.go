// Package embedder provides rag.Embedder implementations for Ollama, OpenAI,
// Azure OpenAI and Gemini, plus Guarded, the wrapper that enforces input
// checks, timeouts and vector-shape consistency in front of any backend.
// The OpenAI-style and Ollama backends speak plain HTTP; Gemini goes
// through the genai SDK.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// OpenAIEmbedder embeds text through the OpenAI embeddings REST API or an
// Azure OpenAI deployment. It is safe for concurrent use.
type OpenAIEmbedder struct {
	endpoint   string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base: "https://api.openai.com/v1", an
	// OpenAI-compatible gateway, or "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is sent as a Bearer token, or as the api-key header for Azure.
	APIKey string
	// Model is the embedding model, or the deployment name for Azure.
	Model string
	// Dimensions requests shortened vectors (text-embedding-3 only). 0 keeps
	// the model default.
	Dimensions int
	// Azure selects deployment-scoped URLs and api-key authentication.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
	// HTTPClient overrides the default client (60s timeout).
	HTTPClient *http.Client
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	header := http.Header{}
	endpoint := base + "/embeddings"
	if cfg.Azure {
		endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) + "/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		header.Set("api-key", cfg.APIKey)
	} else {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OpenAIEmbedder{
		endpoint:   endpoint,
		header:     header,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     client,
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per text, in input order. Response items are
// placed by their index field since the API does not promise ordering.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, e.endpoint, e.header, req, &result); err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		if embeddings[d.Index] != nil {
			return nil, fmt.Errorf("openai embedder: duplicate index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
