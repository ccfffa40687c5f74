package embedding

import (
	"context"
)

// OllamaProvider implements Provider against an Ollama-compatible embeddings
// endpoint. Ollama embeds one prompt per request, so texts go sequentially.
type OllamaProvider struct {
	endpoint string
	model    string
	dims     dimensionCache
}

// NewOllamaProvider creates a new OllamaProvider from the given Config.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	return &OllamaProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		dims:     dimensionCache{configured: cfg.Dimension},
	}
}

type promptEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type promptEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed sends each text as its own request and returns the embeddings.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result promptEmbedResponse
		req := promptEmbedRequest{Model: p.model, Prompt: text}
		if err := postJSON(ctx, p.endpoint+"/api/embeddings", "", req, &result); err != nil {
			return nil, err
		}
		vectors = append(vectors, result.Embedding)
	}
	p.dims.record(vectors)
	return vectors, nil
}

// Dimension returns the vector width observed on the first embed, or the
// configured default before that.
func (p *OllamaProvider) Dimension() int { return p.dims.value() }
