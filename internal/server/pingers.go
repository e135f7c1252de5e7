package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// IndexPinger pings an embedded vector index (SQLite or Badger).
// It satisfies the Pinger interface and is used by GET /api/ready.
type IndexPinger struct {
	// index is the store to ping.
	index interface{ Ping(ctx context.Context) error }
	// name identifies the engine in readiness responses (e.g. "sqlite").
	name string
}

// NewIndexPinger constructs an IndexPinger for an index exposing Ping.
func NewIndexPinger(index interface{ Ping(ctx context.Context) error }, name string) *IndexPinger {
	return &IndexPinger{index: index, name: name}
}

// Name returns the engine label used in readiness responses.
func (p *IndexPinger) Name() string { return p.name }

// Ping checks that the index can serve reads.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if err := p.index.Ping(ctx); err != nil {
		return fmt.Errorf("index unavailable: %w", err)
	}
	return nil
}

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to ping.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger checks the embedding provider with a single one-word
// request, bypassing retries so a cold or rate-limited provider reports
// not ready instead of blocking the check.
type EmbedderPinger struct {
	// embedder is the raw provider client.
	embedder rag.Embedder
	// name identifies the provider in readiness responses.
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given provider.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the provider label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedding:" + p.name }

// Ping embeds a single word and checks a non-empty vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}
