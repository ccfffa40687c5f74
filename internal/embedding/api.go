package embedding

import (
	"context"
	"fmt"
)

// APIProvider implements Provider against an OpenAI-compatible embeddings
// endpoint, batching all texts into one request.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	dims     dimensionCache
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	return &APIProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		dims:     dimensionCache{configured: cfg.Dimension},
	}
}

type batchEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type batchEmbedResponse struct {
	Data []embedVector `json:"data"`
}

type embedVector struct {
	Embedding []float32 `json:"embedding"`
}

// Embed sends all texts in one request and returns their embeddings.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result batchEmbedResponse
	req := batchEmbedRequest{Model: p.model, Input: texts}
	if err := postJSON(ctx, p.endpoint+"/embeddings", p.apiKey, req, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(result.Data), len(texts))
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	p.dims.record(vectors)
	return vectors, nil
}

// Dimension returns the vector width observed on the first embed, or the
// configured default before that.
func (p *APIProvider) Dimension() int { return p.dims.value() }
