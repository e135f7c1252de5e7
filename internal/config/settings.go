package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/54b3r/ytqa-go/internal/embedder"
	"github.com/54b3r/ytqa-go/internal/provider"
	"github.com/54b3r/ytqa-go/internal/rag"
)

// ErrMissingRequired is wrapped by Validate with the name of the missing key.
var ErrMissingRequired = errors.New("missing required configuration")

// Index engines accepted by INDEX_BACKEND.
const (
	IndexSQLite = "sqlite"
	IndexBadger = "badger"
	IndexQdrant = "qdrant"
)

// ModelSettings configures the chat model.
type ModelSettings struct {
	Provider         string        `envconfig:"MODEL_PROVIDER" default:"openrouter"`
	MaxTokens        int           `envconfig:"MODEL_MAX_TOKENS"`
	MaxContextTokens int           `envconfig:"MODEL_MAX_CONTEXT_TOKENS" default:"6000"`
	Temperature      float32       `envconfig:"MODEL_TEMPERATURE" default:"0.4"`
	Timeout          time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`

	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterModel   string `envconfig:"OPENROUTER_MODEL" default:"meta-llama/llama-3-8b-instruct"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	AzureAPIKey     string `envconfig:"AZURE_OPENAI_API_KEY"`
	AzureEndpoint   string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	AzureDeployment string `envconfig:"AZURE_OPENAI_DEPLOYMENT"`
	AzureAPIVersion string `envconfig:"AZURE_OPENAI_API_VERSION" default:"2024-02-01"`

	OllamaHost  string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3"`

	GoogleAPIKey string `envconfig:"GOOGLE_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	ArkAPIKey  string `envconfig:"ARK_API_KEY"`
	ArkModel   string `envconfig:"ARK_MODEL"`
	ArkBaseURL string `envconfig:"ARK_BASE_URL"`
}

// EmbeddingSettings configures the embedding provider and its retry loop.
type EmbeddingSettings struct {
	Provider    string        `envconfig:"EMBEDDING_PROVIDER" default:"huggingface"`
	Model       string        `envconfig:"EMBEDDING_MODEL"`
	APIKey      string        `envconfig:"EMBEDDING_API_KEY"`
	HFToken     string        `envconfig:"HF_TOKEN"`
	Endpoint    string        `envconfig:"EMBEDDING_ENDPOINT"`
	Dimensions  int           `envconfig:"EMBEDDING_DIMENSIONS"`
	BatchSize   int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"10"`
	MaxAttempts int           `envconfig:"EMBEDDING_MAX_ATTEMPTS" default:"5"`
	Timeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"120s"`
}

// TranscriptSettings configures the transcript source.
type TranscriptSettings struct {
	APIKey   string        `envconfig:"SUPADATA_API_KEY"`
	Endpoint string        `envconfig:"TRANSCRIPT_ENDPOINT"`
	Language string        `envconfig:"TRANSCRIPT_LANGUAGE"`
	Timeout  time.Duration `envconfig:"TRANSCRIPT_TIMEOUT" default:"30s"`
}

// IndexSettings configures the vector index engine.
type IndexSettings struct {
	Backend      string `envconfig:"INDEX_BACKEND" default:"sqlite"`
	Path         string `envconfig:"INDEX_PATH" default:"./vector_db"`
	Collection   string `envconfig:"INDEX_COLLECTION" default:"videoqa"`
	QdrantHost   string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	QdrantTLS    bool   `envconfig:"QDRANT_TLS" default:"false"`
}

// IngestSettings configures the ingestion pipeline and task registry.
type IngestSettings struct {
	ChunkSize    int           `envconfig:"INGEST_CHUNK_SIZE" default:"1000"`
	ChunkOverlap int           `envconfig:"INGEST_CHUNK_OVERLAP" default:"80"`
	BatchSize    int           `envconfig:"INGEST_BATCH_SIZE" default:"10"`
	Pacing       time.Duration `envconfig:"INGEST_PACING" default:"400ms"`
	Workers      int           `envconfig:"INGEST_WORKERS" default:"8"`
	TaskTTL      time.Duration `envconfig:"TASK_TTL" default:"0s"`
}

// ServerSettings configures the HTTP server.
type ServerSettings struct {
	Host        string   `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port        int      `envconfig:"SERVER_PORT" default:"8000"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000,https://youtube-qa-rag-bot.vercel.app"`
	// TriggerRateLimit and TriggerRateBurst bound POST /transcript/ per IP.
	// Each trigger costs a transcript fetch and a full ingestion.
	TriggerRateLimit float64 `envconfig:"TRIGGER_RATE_LIMIT" default:"0.2"`
	TriggerRateBurst int     `envconfig:"TRIGGER_RATE_BURST" default:"5"`
	// AskRateLimit and AskRateBurst bound GET /transcript/ask per IP.
	AskRateLimit float64 `envconfig:"ASK_RATE_LIMIT" default:"1"`
	AskRateBurst int     `envconfig:"ASK_RATE_BURST" default:"10"`
}

// LoggingSettings configures structured logging.
type LoggingSettings struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// TracingSettings configures Langfuse tracing.
type TracingSettings struct {
	Host      string `envconfig:"LANGFUSE_HOST" default:"http://localhost:3000"`
	PublicKey string `envconfig:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `envconfig:"LANGFUSE_SECRET_KEY"`
}

// Settings is the typed configuration read from the environment after the
// .env file and YAML config have been applied.
type Settings struct {
	Model      ModelSettings
	Embedding  EmbeddingSettings
	Transcript TranscriptSettings
	Index      IndexSettings
	Ingest     IngestSettings
	Server     ServerSettings
	Logging    LoggingSettings
	Tracing    TracingSettings
}

// sections returns pointers to every settings section, in processing order.
func (s *Settings) sections() []any {
	return []any{&s.Model, &s.Embedding, &s.Transcript, &s.Index, &s.Ingest, &s.Server, &s.Logging, &s.Tracing}
}

// LoadDotEnv loads ./.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
}

// LoadSettings strips surrounding quotes from every known variable and
// processes the environment into Settings. It does not validate.
func LoadSettings() (*Settings, error) {
	var s Settings
	stripQuotes(s.sections())

	// Each section is processed on its own so envconfig does not prefix
	// nested keys with the section name.
	for _, section := range s.sections() {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return &s, nil
}

// Validate checks settings every command depends on.
func (s *Settings) Validate() error {
	if s.Transcript.APIKey == "" {
		return fmt.Errorf("%w: SUPADATA_API_KEY", ErrMissingRequired)
	}

	switch s.Index.Backend {
	case IndexSQLite, IndexBadger:
		if s.Index.Path == "" {
			return fmt.Errorf("%w: INDEX_PATH", ErrMissingRequired)
		}
	case IndexQdrant:
		if s.Index.QdrantHost == "" {
			return fmt.Errorf("%w: QDRANT_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("config: INDEX_BACKEND must be one of sqlite, badger, qdrant, got %q", s.Index.Backend)
	}

	if s.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("config: INGEST_CHUNK_SIZE must be positive, got %d", s.Ingest.ChunkSize)
	}
	if s.Ingest.ChunkOverlap < 0 || s.Ingest.ChunkOverlap >= s.Ingest.ChunkSize {
		return fmt.Errorf("config: INGEST_CHUNK_OVERLAP must be within [0, %d), got %d", s.Ingest.ChunkSize, s.Ingest.ChunkOverlap)
	}
	if s.Ingest.Pacing < 0 {
		return fmt.Errorf("config: INGEST_PACING must not be negative, got %s", s.Ingest.Pacing)
	}
	return nil
}

// ProviderConfig maps the model settings onto a provider.Config.
func (s *Settings) ProviderConfig() *provider.Config {
	m := s.Model
	return &provider.Config{
		Backend:     provider.Backend(strings.ToLower(m.Provider)),
		OpenRouter:  provider.ProviderOpenRouter{APIKey: m.OpenRouterAPIKey, Model: m.OpenRouterModel, BaseURL: m.OpenRouterBaseURL},
		OpenAI:      provider.ProviderOpenAI{APIKey: m.OpenAIAPIKey, Model: m.OpenAIModel, BaseURL: m.OpenAIBaseURL},
		AzureOpenAI: provider.ProviderAzureOpenAI{APIKey: m.AzureAPIKey, Endpoint: m.AzureEndpoint, Deployment: m.AzureDeployment, APIVersion: m.AzureAPIVersion},
		Ollama:      provider.ProviderOllama{Host: m.OllamaHost, Model: m.OllamaModel},
		Gemini:      provider.ProviderGemini{APIKey: m.GoogleAPIKey, Model: m.GeminiModel},
		Ark:         provider.ProviderArk{APIKey: m.ArkAPIKey, Model: m.ArkModel, BaseURL: m.ArkBaseURL},
		Tuning: provider.SharedTuning{
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Timeout:     m.Timeout,
		},
	}
}

// EmbedderConfig maps the embedding settings onto an embedder.Config. When
// EMBEDDING_API_KEY or EMBEDDING_ENDPOINT are unset the backend's native
// variables are used instead.
func (s *Settings) EmbedderConfig() *embedder.Config {
	e := s.Embedding
	cfg := &embedder.Config{
		Provider:   strings.ToLower(e.Provider),
		Model:      e.Model,
		APIKey:     e.APIKey,
		Endpoint:   e.Endpoint,
		Dimensions: e.Dimensions,
		Timeout:    e.Timeout,
	}

	switch cfg.Provider {
	case embedder.BackendHuggingFace, "":
		if cfg.APIKey == "" {
			cfg.APIKey = e.HFToken
		}
	case embedder.BackendOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = s.Model.OpenAIAPIKey
		}
	case embedder.BackendAzure:
		if cfg.APIKey == "" {
			cfg.APIKey = s.Model.AzureAPIKey
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = s.Model.AzureEndpoint
		}
		cfg.APIVersion = s.Model.AzureAPIVersion
	case embedder.BackendOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = s.Model.OllamaHost
		}
	}
	return cfg
}

// BatcherConfig maps the embedding retry settings onto an embedder.BatcherConfig.
func (s *Settings) BatcherConfig() *embedder.BatcherConfig {
	policy := embedder.DefaultRetryPolicy()
	if s.Embedding.MaxAttempts > 0 {
		policy.MaxAttempts = s.Embedding.MaxAttempts
	}
	return &embedder.BatcherConfig{
		BatchSize:      s.Embedding.BatchSize,
		Policy:         policy,
		AttemptTimeout: s.Embedding.Timeout,
	}
}

// QdrantConfig maps the index settings onto a rag.QdrantConfig.
func (s *Settings) QdrantConfig(vectorSize int) *rag.QdrantConfig {
	return &rag.QdrantConfig{
		Host:       s.Index.QdrantHost,
		Port:       s.Index.QdrantPort,
		Collection: s.Index.Collection,
		VectorSize: uint64(vectorSize),
		APIKey:     s.Index.QdrantAPIKey,
		UseTLS:     s.Index.QdrantTLS,
	}
}

// stripQuotes trims whitespace and one pair of matching surrounding quotes
// from every environment variable named by an envconfig tag in sections.
func stripQuotes(sections []any) {
	for _, section := range sections {
		t := reflect.TypeOf(section).Elem()
		for i := range t.NumField() {
			key := t.Field(i).Tag.Get("envconfig")
			if key == "" {
				continue
			}
			v, ok := os.LookupEnv(key)
			if !ok {
				continue
			}
			switch cleaned := cleanValue(v); {
			case cleaned == "":
				// Blank values fall back to the field default.
				_ = os.Unsetenv(key)
			case cleaned != v:
				_ = os.Setenv(key, cleaned)
			}
		}
	}
}

// cleanValue trims whitespace and one pair of matching quotes.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			v = strings.TrimSpace(v[1 : len(v)-1])
		}
	}
	return v
}
