package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceEmbedder implements rag.Embedder using the Hugging Face
// inference router feature-extraction pipeline. It is safe for concurrent use.
type HuggingFaceEmbedder struct {
	// baseURL is the models root (e.g. "https://router.huggingface.co/hf-inference/models").
	baseURL string
	// token is the Hugging Face access token sent as a Bearer credential.
	token string
	// model is the sentence-transformers model id.
	model string
	// client is the shared HTTP client.
	client *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	// BaseURL is the models root. Defaults to the public inference router.
	BaseURL string
	// Token is the Hugging Face access token (HF_TOKEN).
	Token string
	// Model is the model id (default: sentence-transformers/all-MiniLM-L6-v2).
	Model string
	// Timeout bounds each request (default: 120s).
	Timeout time.Duration
}

// NewHuggingFaceEmbedder constructs a HuggingFaceEmbedder from the given config.
func NewHuggingFaceEmbedder(cfg *HuggingFaceConfig) *HuggingFaceEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultHuggingFaceModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HuggingFaceEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// hfRequest is the JSON body sent to the feature-extraction pipeline.
type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

// hfOptions asks the router to hold the request while a cold model loads
// instead of answering 503 immediately.
type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(hfRequest{
		Inputs:  texts,
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: marshal request: %w", err)
	}

	url := e.baseURL + "/" + e.model + "/pipeline/feature-extraction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError("huggingface", resp)
	}

	var result [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("huggingface embedder: decode response: %w", err)
	}

	if len(result) != len(texts) {
		return nil, fmt.Errorf("huggingface embedder: expected %d embeddings, got %d", len(texts), len(result))
	}

	return result, nil
}
