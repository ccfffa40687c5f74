package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashProvider is a deterministic offline embedder. Each word token is
// hashed into a bucket of the output vector and the result is
// L2-normalized, so identical texts always map to identical unit vectors
// and token overlap translates into cosine similarity. Useful for the dev
// console and tests; not a semantic model.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider with the given dimension
// (default 128).
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 128
	}
	return &HashProvider{dimension: dimension}
}

// Embed maps each text onto a normalized bag-of-words hash vector.
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32())%p.dimension]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Dimension returns the configured vector dimension.
func (p *HashProvider) Dimension() int { return p.dimension }
