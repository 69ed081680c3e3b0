// Package provider selects and constructs the chat model backend used to
// generate answers and analyses. Supported backends: Ollama, OpenAI,
// Azure OpenAI, Volcengine Ark, Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds settings for a local Ollama server.
type ProviderOllama struct {
	Host  string // OLLAMA_HOST
	Model string // OLLAMA_MODEL
}

// ProviderOpenAI holds settings for the OpenAI API.
type ProviderOpenAI struct {
	APIKey  string // OPENAI_API_KEY
	Model   string // OPENAI_MODEL
	BaseURL string // OPENAI_BASE_URL, optional (OpenAI-compatible gateways)
}

// ProviderAzureOpenAI holds settings for an Azure OpenAI deployment.
type ProviderAzureOpenAI struct {
	APIKey     string // AZURE_OPENAI_API_KEY
	Endpoint   string // AZURE_OPENAI_ENDPOINT
	Deployment string // AZURE_OPENAI_DEPLOYMENT
	APIVersion string // AZURE_OPENAI_API_VERSION
}

// ProviderArk holds settings for the Volcengine Ark runtime.
type ProviderArk struct {
	APIKey  string // ARK_API_KEY
	Model   string // ARK_MODEL (endpoint ID)
	BaseURL string // ARK_BASE_URL, optional
}

// ProviderGemini holds settings for Google Gemini.
type ProviderGemini struct {
	APIKey string // GOOGLE_API_KEY
	Model  string // GEMINI_MODEL
}

// SharedTuning holds generation defaults applied to every backend.
// Individual requests may override them.
type SharedTuning struct {
	MaxTokens   int     // MODEL_MAX_TOKENS
	Temperature float32 // MODEL_TEMPERATURE
}

// Config is the fully resolved provider configuration. Only the block
// matching Backend is consulted.
type Config struct {
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: ollama, openai, azure, ark, gemini", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}

// SupportsTemperature reports whether the selected model accepts a
// temperature parameter. Azure reasoning deployments reject it.
func (c *Config) SupportsTemperature() bool {
	return c.Backend != BackendAzure || !isAzureReasoningModel(c.AzureOpenAI.Deployment)
}

// isAzureReasoningModel matches o-series and codex deployments by prefix.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
