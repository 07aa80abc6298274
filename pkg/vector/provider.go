// Package vector stores and searches embedded training examples. Two
// backends are supported: an external Qdrant server for production and the
// embedded chromem store for development and tests.
package vector

import (
	"context"
	"fmt"

	"github.com/kavora-ai/replygen/pkg/config"
)

// Result is one similarity hit.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// Provider is a vector store backend.
type Provider interface {
	// Name returns the backend name.
	Name() string

	// Upsert adds or updates a vector with metadata.
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error

	// Search returns the topK most similar vectors, optionally filtered by
	// exact-match metadata.
	Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Result, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases backend resources.
	Close() error
}

// NewFromConfig builds the configured provider.
func NewFromConfig(cfg config.VectorConfig) (Provider, error) {
	switch cfg.Backend {
	case config.VectorQdrant:
		return NewQdrantProvider(cfg)
	case config.VectorChromem:
		return NewChromemProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.Backend)
	}
}
