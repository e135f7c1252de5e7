package provider

import (
	"context"
	"fmt"
	"strings"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// newOpenRouter constructs a chat model against OpenRouter's
// OpenAI-compatible endpoint.
func newOpenRouter(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	baseURL := cfg.OpenRouter.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.ModelName(),
		APIKey:      cfg.OpenRouter.APIKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		MaxTokens:   maxTokens(cfg),
		Temperature: temperature(cfg),
		Timeout:     cfg.Tuning.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create openrouter model: %w", err)
	}
	return m, nil
}

// newOpenAI constructs a chat model backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   maxTokens(cfg),
		Temperature: temperature(cfg),
		Timeout:     cfg.Tuning.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create openai model: %w", err)
	}
	return m, nil
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
// Reasoning deployments reject temperature and max_tokens, so both are
// omitted for them.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	az := cfg.AzureOpenAI
	mc := &einoopenai.ChatModelConfig{
		Model:      az.Deployment,
		APIKey:     az.APIKey,
		BaseURL:    az.Endpoint,
		ByAzure:    true,
		APIVersion: az.APIVersion,
		Timeout:    cfg.Tuning.Timeout,
		// Deployment names like "gpt-4.1" must pass through unchanged; the
		// default mapper strips dots.
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !isAzureReasoningModel(az.Deployment) {
		mc.MaxTokens = maxTokens(cfg)
		mc.Temperature = temperature(cfg)
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: create azure model: %w", err)
	}
	return m, nil
}

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	host := cfg.Ollama.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: host,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.Tuning.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create ollama model: %w", err)
	}
	return m, nil
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   maxTokens(cfg),
		Temperature: temperature(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create gemini model: %w", err)
	}
	return m, nil
}

// newArk constructs a chat model backed by Volcengine Ark.
func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   maxTokens(cfg),
		Temperature: temperature(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create ark model: %w", err)
	}
	return m, nil
}

// maxTokens returns the configured cap, or nil to keep the provider default.
func maxTokens(cfg *Config) *int {
	if cfg.Tuning.MaxTokens <= 0 {
		return nil
	}
	n := cfg.Tuning.MaxTokens
	return &n
}

// temperature returns a pointer to the configured temperature.
func temperature(cfg *Config) *float32 {
	t := cfg.Tuning.Temperature
	return &t
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	if strings.HasPrefix(d, "codex") {
		return true
	}
	if len(d) >= 2 && d[0] == 'o' && d[1] >= '1' && d[1] <= '9' {
		return true
	}
	return false
}
