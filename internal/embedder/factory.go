// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings, plus the Batcher that turns a
// single-call provider into a rag.BatchEmbedder with batching and retries.
// Each provider (Hugging Face, Ollama, OpenAI, Azure OpenAI) is reached over
// plain HTTP.
package embedder

import (
	"fmt"
	"time"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// Supported embedding backends.
const (
	BackendHuggingFace = "huggingface"
	BackendOllama      = "ollama"
	BackendOpenAI      = "openai"
	BackendAzure       = "azure"
)

// Default endpoints, models, and dimensions per backend.
const (
	defaultHuggingFaceURL   = "https://router.huggingface.co/hf-inference/models"
	defaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultOllamaHost       = "http://localhost:11434"
	defaultOllamaModel      = "nomic-embed-text"
	defaultOpenAIURL        = "https://api.openai.com/v1"
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultAzureAPIVersion  = "2025-04-01-preview"

	// defaultHuggingFaceDimensions is the output dimension of all-MiniLM-L6-v2.
	defaultHuggingFaceDimensions = 384
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	// defaultTimeout bounds a single provider call.
	defaultTimeout = 120 * time.Second
)

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is one of huggingface, ollama, openai, azure.
	Provider string
	// Model overrides the backend's default model.
	Model string
	// APIKey is the provider credential (HF token, OpenAI or Azure key).
	APIKey string
	// Endpoint overrides the backend's default base URL. Required for azure.
	Endpoint string
	// Dimensions overrides the default vector size (0 = backend default).
	Dimensions int
	// APIVersion is the Azure OpenAI API version. Ignored for other backends.
	APIVersion string
	// Timeout bounds each provider call (default: 120s).
	Timeout time.Duration
}

// DefaultDimensions returns the embedding vector size for cfg. Callers that
// need to pre-configure a vector store (e.g. Qdrant collection creation)
// should use this rather than hardcoding a value.
func DefaultDimensions(cfg *Config) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	switch cfg.Provider {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendOpenAI, BackendAzure:
		return defaultOpenAIDimensions
	default:
		return defaultHuggingFaceDimensions
	}
}

// New constructs the rag.Embedder selected by cfg.Provider.
func New(cfg *Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case BackendHuggingFace, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: huggingface requires HF_TOKEN or EMBEDDING_API_KEY")
		}
		return NewHuggingFaceEmbedder(&HuggingFaceConfig{
			BaseURL: cfg.Endpoint,
			Token:   cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil

	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil

	case BackendOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires EMBEDDING_API_KEY or OPENAI_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    orDefault(cfg.Endpoint, defaultOpenAIURL),
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil

	case BackendAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_API_KEY or AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_ENDPOINT or AZURE_OPENAI_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: orDefault(cfg.APIVersion, defaultAzureAPIVersion),
			Timeout:    cfg.Timeout,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: huggingface, ollama, openai, azure", cfg.Provider)
	}
}

// orDefault returns v, or fallback when v is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
