// Package provider selects and constructs the chat model that writes answers.
// Supported backends: OpenRouter (default), OpenAI, Azure OpenAI, Ollama,
// Google Gemini and Volcengine Ark. Every backend is exposed as an eino
// model.BaseChatModel.
package provider

import (
	"fmt"
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOpenRouter selects the OpenRouter OpenAI-compatible API.
	BackendOpenRouter Backend = "openrouter"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Defaults applied when a setting is empty.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel   = "meta-llama/llama-3-8b-instruct"
	DefaultTemperature       = 0.4
	DefaultTimeout           = 60 * time.Second
)

// ProviderOpenRouter holds OpenRouter settings.
type ProviderOpenRouter struct {
	// APIKey is read from OPENROUTER_API_KEY.
	APIKey string
	// Model is read from OPENROUTER_MODEL.
	Model string
	// BaseURL is read from OPENROUTER_BASE_URL.
	BaseURL string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is read from OPENAI_API_KEY.
	APIKey string
	// Model is read from OPENAI_MODEL.
	Model string
	// BaseURL optionally overrides the API endpoint (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is read from AZURE_OPENAI_API_KEY.
	APIKey string
	// Endpoint is read from AZURE_OPENAI_ENDPOINT.
	Endpoint string
	// Deployment is read from AZURE_OPENAI_DEPLOYMENT.
	Deployment string
	// APIVersion is read from AZURE_OPENAI_API_VERSION.
	APIVersion string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is read from OLLAMA_HOST.
	Host string
	// Model is read from OLLAMA_MODEL.
	Model string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is read from GOOGLE_API_KEY.
	APIKey string
	// Model is read from GEMINI_MODEL.
	Model string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is read from ARK_API_KEY.
	APIKey string
	// Model is the Ark endpoint ID, read from ARK_MODEL.
	Model string
	// BaseURL optionally overrides the Ark region endpoint (ARK_BASE_URL).
	BaseURL string
}

// SharedTuning holds generation settings shared by every backend.
type SharedTuning struct {
	// MaxTokens caps generated tokens; zero leaves the provider default.
	MaxTokens int
	// Temperature controls response randomness.
	Temperature float32
	// Timeout bounds each completion request.
	Timeout time.Duration
}

// Config holds all provider-level configuration.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	OpenRouter  ProviderOpenRouter
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Gemini      ProviderGemini
	Ark         ProviderArk
	Tuning      SharedTuning
}

// Validate checks that the selected backend has every required setting and
// names the missing environment variable when it does not.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenRouter, "":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("provider: OPENROUTER_API_KEY is required for openrouter backend")
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
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: openrouter, openai, azure, ollama, gemini, ark)", c.Backend)
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be within [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model identifier the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	default:
		if c.OpenRouter.Model == "" {
			return DefaultOpenRouterModel
		}
		return c.OpenRouter.Model
	}
}
