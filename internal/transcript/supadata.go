// Package transcript fetches YouTube transcripts and normalises video
// identifiers. Transcripts are retrieved from the Supadata transcript API and
// flattened into a single line of space-separated text.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the video has no retrievable transcript.
var ErrNotFound = errors.New("transcript: no transcript available")

// Fetcher retrieves the transcript of a video.
type Fetcher interface {
	// Fetch returns the transcript text for videoID, or ErrNotFound.
	Fetch(ctx context.Context, videoID string) (string, error)
}

// defaultSupadataEndpoint is the Supadata transcript endpoint.
const defaultSupadataEndpoint = "https://api.supadata.ai/v1/transcript"

// SupadataConfig holds the settings for constructing a SupadataClient.
type SupadataConfig struct {
	// Endpoint is the transcript endpoint URL (default: Supadata v1).
	Endpoint string
	// APIKey is sent in the x-api-key header (SUPADATA_API_KEY).
	APIKey string
	// Language optionally requests a transcript language (ISO 639-1).
	Language string
	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// SupadataClient implements Fetcher against the Supadata transcript API.
// It is safe for concurrent use.
type SupadataClient struct {
	// endpoint is the transcript endpoint URL.
	endpoint string
	// apiKey authenticates requests.
	apiKey string
	// language is the optional requested language.
	language string
	// client is the shared HTTP client.
	client *http.Client
}

// NewSupadataClient constructs a SupadataClient from cfg.
func NewSupadataClient(cfg *SupadataConfig) (*SupadataClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transcript: SUPADATA_API_KEY is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultSupadataEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SupadataClient{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// supadataSegment is one timed caption segment.
type supadataSegment struct {
	Text     string  `json:"text"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// supadataResponse is the JSON body returned by the transcript endpoint.
type supadataResponse struct {
	Content []supadataSegment `json:"content"`
	Lang    string            `json:"lang"`
}

// Fetch retrieves the transcript for videoID and joins its segments with
// single spaces, flattening embedded newlines.
func (c *SupadataClient) Fetch(ctx context.Context, videoID string) (string, error) {
	q := url.Values{}
	q.Set("url", WatchURL(videoID))
	if c.language != "" {
		q.Set("lang", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("transcript: create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcript: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result supadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("transcript: decode response: %w", err)
	}

	text := flatten(result.Content)
	if text == "" {
		return "", ErrNotFound
	}
	return text, nil
}

// flatten joins segment texts with spaces, replaces newlines with spaces,
// and trims the result.
func flatten(segments []supadataSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	text := strings.Join(parts, " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
