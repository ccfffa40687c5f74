package knowledge

import "strings"

// ChunkConfig controls how source documents are fragmented.
type ChunkConfig struct {
	// TokenBudget is the approximate token count per chunk (words are used
	// as the token proxy). Default 256.
	TokenBudget int
	// Overlap is the number of trailing tokens repeated at the start of
	// the next chunk, preserving local context across boundaries.
	// Default 32.
	Overlap int
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{TokenBudget: 256, Overlap: 32}
}

// Chunk splits a document into overlapping fragments on word boundaries.
// A document within the budget comes back as a single chunk; whitespace-only
// input yields no chunks.
func Chunk(text string, cfg ChunkConfig) []string {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultChunkConfig().TokenBudget
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.TokenBudget {
		cfg.Overlap = cfg.TokenBudget / 8
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= cfg.TokenBudget {
		return []string{strings.Join(words, " ")}
	}

	step := cfg.TokenBudget - cfg.Overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + cfg.TokenBudget
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
