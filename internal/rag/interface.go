// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, document retrieval, and embedding.
// Concrete implementations (SQLite, Badger, Qdrant) satisfy these interfaces
// so the ingestion and question-answering layers never depend on a specific
// backend.
package rag

import (
	"context"
)

// Metadata keys attached to every transcript chunk.
const (
	// MetaVideoID partitions the index by YouTube video.
	MetaVideoID = "video_id"
	// MetaLanguage is the transcript language code.
	MetaLanguage = "language"
	// MetaSource is the origin of the text (always "youtube" today).
	MetaSource = "source"
)

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this document chunk. Stores assign a
	// UUID when it is empty at insertion time.
	ID string `json:"id,omitempty"`

	// Content is the raw text content of the chunk.
	Content string `json:"content"`

	// Metadata holds the partition key and provenance labels (video_id,
	// language, source). Every chunk of a transcript carries the same map.
	Metadata map[string]string `json:"metadata"`

	// Score is the cosine similarity assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32 `json:"score"`
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines and must
// tolerate reads concurrent with writes.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs: embeddings[i] is the vector for docs[i].
	// Documents without an ID are assigned one.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns at most topK documents whose metadata matches every
	// entry of filter, ordered by decreasing similarity to queryEmbedding.
	// A nil or empty filter matches every document.
	Search(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]string) ([]Document, error)

	// ListIDs returns the identifiers of every resident document.
	ListIDs(ctx context.Context) ([]string, error)

	// Delete removes documents by their IDs. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings
// with a single provider call. Implementations must be safe to call from
// multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchEmbedder embeds arbitrarily many texts, batching and retrying provider
// calls internally. Failures are reported in the result rather than as errors
// so callers can keep whatever was embedded.
type BatchEmbedder interface {
	// EmbedDocuments embeds texts and returns a per-text result.
	EmbedDocuments(ctx context.Context, texts []string) EmbedResult

	// EmbedQuery embeds a single text. It returns an empty vector when the
	// provider could not embed it.
	EmbedQuery(ctx context.Context, text string) []float32
}

// Retriever is the high-level interface used to fetch relevant transcript
// context for a question. It combines embedding and filtered vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks of videoID for query.
	// It never fails: any problem yields an empty slice.
	Retrieve(ctx context.Context, query, videoID string, topK int) []Document
}
