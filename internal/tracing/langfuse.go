// Package tracing wires Langfuse into the eino callback system so every
// answer generation is traced when credentials are configured.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the Langfuse API host used when none is configured.
const defaultHost = "http://localhost:3000"

// Config holds Langfuse credentials.
type Config struct {
	// Host is the Langfuse API host (LANGFUSE_HOST).
	Host string
	// PublicKey is the Langfuse public key (LANGFUSE_PUBLIC_KEY).
	PublicKey string
	// SecretKey is the Langfuse secret key (LANGFUSE_SECRET_KEY).
	SecretKey string
}

// Setup initialises the Langfuse callback handler if both keys are set.
// Returns a flush function that must be called before process exit to ensure
// all traces are sent. If Langfuse is not configured, the handler and flush
// function are nil and tracing is silently disabled.
func Setup(cfg Config) (callbacks.Handler, func(), bool) {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})

	return handler, flusher, true
}
