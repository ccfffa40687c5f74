package embedding

import (
	"context"

	"go.uber.org/zap"
)

// Gateway wraps a Provider with the storage-side embedding contract: a
// fixed dimension for the lifetime of the store, and graceful degradation.
// Upstream failure yields the zero vector instead of an error, so writes
// are never blocked by an embedding outage. Callers doing similarity
// search must treat zero vectors as non-matching.
type Gateway struct {
	provider Provider
	logger   *zap.Logger
}

// NewGateway creates a Gateway over the given provider.
func NewGateway(provider Provider, logger *zap.Logger) *Gateway {
	return &Gateway{provider: provider, logger: logger}
}

// EmbedText embeds a single text. On failure, or when the provider returns
// a vector of the wrong dimension, it logs and returns the zero vector.
func (g *Gateway) EmbedText(ctx context.Context, text string) []float32 {
	dim := g.provider.Dimension()
	if text == "" {
		return make([]float32, dim)
	}

	vectors, err := g.provider.Embed(ctx, []string{text})
	if err != nil {
		g.logger.Warn("embedding failed, storing zero vector", zap.Error(err))
		return make([]float32, dim)
	}
	if len(vectors) == 0 || len(vectors[0]) != dim {
		g.logger.Warn("embedding dimension mismatch, storing zero vector",
			zap.Int("want", dim),
			zap.Int("vectors", len(vectors)))
		return make([]float32, dim)
	}
	return vectors[0]
}

// Dimension returns the fixed vector dimension of this deployment.
func (g *Gateway) Dimension() int {
	return g.provider.Dimension()
}
