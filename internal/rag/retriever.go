package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultTopK is the number of chunks returned when the caller passes 0.
const DefaultTopK = 5

// DefaultRetriever implements the Retriever interface by combining a
// BatchEmbedder and a VectorStore. It embeds the question at retrieval time
// and searches only the partition of the requested video.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder BatchEmbedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int

	// log records swallowed search failures.
	log *slog.Logger
}

// NewRetriever constructs a DefaultRetriever from the given embedder and store.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder BatchEmbedder, store VectorStore, defaultTopK int, log *slog.Logger) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
		log:         log,
	}, nil
}

// Retrieve embeds the query and returns the top-k chunks of videoID.
// If topK is 0 the defaultTopK configured at construction time is used.
// A blank query, an empty query embedding, or a failed search all yield an
// empty slice.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query, videoID string, topK int) []Document {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if strings.TrimSpace(query) == "" {
		return []Document{}
	}

	vec := r.embedder.EmbedQuery(ctx, query)
	if len(vec) == 0 {
		r.log.Warn("rag: query embedding unavailable, returning no context",
			slog.String("video_id", videoID),
		)
		return []Document{}
	}

	docs, err := r.store.Search(ctx, vec, topK, map[string]string{MetaVideoID: videoID})
	if err != nil {
		r.log.Error("rag: vector search failed",
			slog.String("video_id", videoID),
			slog.Any("error", err),
		)
		return []Document{}
	}
	if docs == nil {
		docs = []Document{}
	}

	return docs
}
