package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If the configured embedding
// model matches any of these, a warning is emitted so the operator knows they
// may have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the embedder and vector index
// are constructed, so operators get a clear error at startup rather than a
// failed ingestion later. It returns an error when the configuration is
// clearly broken and logs a warning when the model name looks like a chat
// model.
func Validate(cfg *Config, log *slog.Logger) error {
	switch cfg.Provider {
	case BackendHuggingFace, "":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no Hugging Face token found, set HF_TOKEN or EMBEDDING_API_KEY")
		}
	case BackendOpenAI:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case BackendOllama:
	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: huggingface, ollama, openai, azure", cfg.Provider)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. sentence-transformers/all-MiniLM-L6-v2, nomic-embed-text"),
		)
	}

	return nil
}
