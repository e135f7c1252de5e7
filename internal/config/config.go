// Package config provides layered configuration for ytqa.
// Configuration is loaded with the precedence: defaults → .env → YAML file →
// env vars. Environment variables always win, so existing workflows are
// unaffected. [Settings] is the typed view every command reads.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. YTQA_CONFIG environment variable
//  3. ~/.ytqa/config.yaml
//  4. ./ytqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model that writes answers.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Transcript configures the transcript source.
	Transcript TranscriptConfig `yaml:"transcript"`

	// Index configures the vector index engine.
	Index IndexConfig `yaml:"index"`

	// Qdrant configures the Qdrant connection when index.backend is qdrant.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: openrouter, openai, azure, ollama, gemini, ark.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// MaxContextTokens bounds the estimated prompt size.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// Temperature controls response randomness.
	Temperature float32 `yaml:"temperature"`

	// Timeout bounds each completion request (e.g. "60s").
	Timeout string `yaml:"timeout"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Azure      AzureConfig      `yaml:"azure"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Ark        ArkConfig        `yaml:"ark"`
}

// OpenRouterConfig holds OpenRouter provider settings.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter key. Prefer env var OPENROUTER_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenRouter model slug.
	Model string `yaml:"model"`
	// BaseURL overrides the OpenRouter endpoint.
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL overrides the OpenAI endpoint.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark region endpoint.
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (huggingface, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// HFToken is the Hugging Face token. Prefer env var HF_TOKEN.
	HFToken string `yaml:"hf_token"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size"`
	// MaxAttempts is the retry ceiling per batch.
	MaxAttempts int `yaml:"max_attempts"`
	// Timeout bounds each attempt (e.g. "120s").
	Timeout string `yaml:"timeout"`
}

// TranscriptConfig holds transcript source settings.
type TranscriptConfig struct {
	// APIKey is the Supadata key. Prefer env var SUPADATA_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint overrides the transcript endpoint.
	Endpoint string `yaml:"endpoint"`
	// Language requests a transcript language.
	Language string `yaml:"language"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the engine: sqlite, badger, qdrant.
	Backend string `yaml:"backend"`
	// Path is the directory holding embedded index files.
	Path string `yaml:"path"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// ChunkSize is the chunk window in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// BatchSize is the number of chunks stored per step.
	BatchSize int `yaml:"batch_size"`
	// Pacing is the delay between batches (e.g. "400ms", "0s" disables).
	Pacing string `yaml:"pacing"`
	// Workers bounds how many videos may be queued at once.
	Workers int `yaml:"workers"`
	// TaskTTL evicts finished tasks after this long (e.g. "24h").
	TaskTTL string `yaml:"task_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `yaml:"cors_origins"`
	// TriggerRateLimit is the per-IP rate of ingestion triggers (requests/second).
	TriggerRateLimit float64 `yaml:"trigger_rate_limit"`
	// TriggerRateBurst is the per-IP trigger burst size.
	TriggerRateBurst int `yaml:"trigger_rate_burst"`
	// AskRateLimit is the per-IP rate of questions (requests/second).
	AskRateLimit float64 `yaml:"ask_rate_limit"`
	// AskRateBurst is the per-IP question burst size.
	AskRateBurst int `yaml:"ask_rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Model.MaxContextTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_TIMEOUT", func(c *Config) string { return c.Model.Timeout }},
	{"OPENROUTER_API_KEY", func(c *Config) string { return c.Model.OpenRouter.APIKey }},
	{"OPENROUTER_MODEL", func(c *Config) string { return c.Model.OpenRouter.Model }},
	{"OPENROUTER_BASE_URL", func(c *Config) string { return c.Model.OpenRouter.BaseURL }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"HF_TOKEN", func(c *Config) string { return c.Embedding.HFToken }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Embedding.MaxAttempts) }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"SUPADATA_API_KEY", func(c *Config) string { return c.Transcript.APIKey }},
	{"TRANSCRIPT_ENDPOINT", func(c *Config) string { return c.Transcript.Endpoint }},
	{"TRANSCRIPT_LANGUAGE", func(c *Config) string { return c.Transcript.Language }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_PATH", func(c *Config) string { return c.Index.Path }},
	{"INDEX_COLLECTION", func(c *Config) string { return c.Index.Collection }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"INGEST_BATCH_SIZE", func(c *Config) string { return intStr(c.Ingest.BatchSize) }},
	{"INGEST_PACING", func(c *Config) string { return c.Ingest.Pacing }},
	{"INGEST_WORKERS", func(c *Config) string { return intStr(c.Ingest.Workers) }},
	{"TASK_TTL", func(c *Config) string { return c.Ingest.TaskTTL }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CORS_ORIGINS", func(c *Config) string { return strings.Join(c.Server.CORSOrigins, ",") }},
	{"TRIGGER_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.TriggerRateLimit) }},
	{"TRIGGER_RATE_BURST", func(c *Config) string { return intStr(c.Server.TriggerRateBurst) }},
	{"ASK_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.AskRateLimit) }},
	{"ASK_RATE_BURST", func(c *Config) string { return intStr(c.Server.AskRateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set: do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("YTQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ytqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ytqa.yaml"); err == nil {
		return "ytqa.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
