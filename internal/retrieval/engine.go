package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"go.uber.org/zap"
)

// Config tunes the retrieval pipeline.
type Config struct {
	// Threshold is the vector-similarity floor; fragments below it are
	// excluded even when the candidate set is not full. Default 0.65.
	Threshold float64 `json:"threshold"`
	// Count is the number of fragments finally returned. Default 5.
	Count int `json:"count"`
	// Headroom multiplies Count to size the vector fetch, leaving the
	// reranker room to reorder. Default 3.
	Headroom int `json:"headroom"`
	// Rerank weights. Defaults 0.6 vector, 0.3 keyword, 0.1 recency.
	WeightVector  float64 `json:"weight_vector"`
	WeightKeyword float64 `json:"weight_keyword"`
	WeightRecency float64 `json:"weight_recency"`
	// RecencyHalfLife controls the recency decay signal. Zero disables it.
	RecencyHalfLife time.Duration `json:"-"`
	// SampleSize bounds the randomized subset drawn from passing
	// fragments. Zero returns all passing fragments up to Count.
	SampleSize int `json:"sample_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:       0.65,
		Count:           5,
		Headroom:        3,
		WeightVector:    0.6,
		WeightKeyword:   0.3,
		WeightRecency:   0.1,
		RecencyHalfLife: 24 * time.Hour,
	}
}

// Fragment is a retrieved knowledge fragment with its ranking signals.
type Fragment struct {
	Record     *memory.Record
	Similarity float64 // raw vector similarity
	Score      float64 // blended rerank score
}

// Engine produces the most relevant knowledge fragments for a query,
// blending vector similarity with term overlap and conversational recency.
type Engine struct {
	store   memory.Store
	gateway *embedding.Gateway
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates a retrieval engine.
func NewEngine(store memory.Store, gateway *embedding.Gateway, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultConfig().Count
	}
	if cfg.Headroom <= 1 {
		cfg.Headroom = DefaultConfig().Headroom
	}
	if cfg.WeightVector <= 0 && cfg.WeightKeyword <= 0 && cfg.WeightRecency <= 0 {
		d := DefaultConfig()
		cfg.WeightVector = d.WeightVector
		cfg.WeightKeyword = d.WeightKeyword
		cfg.WeightRecency = d.WeightRecency
	}
	return &Engine{store: store, gateway: gateway, config: cfg, logger: logger, now: time.Now}
}

// Query retrieves, reranks and (optionally) samples knowledge fragments for
// the given query text. An empty knowledge base yields an empty result. A
// nil session disables rotation sampling.
func (e *Engine) Query(ctx context.Context, roomID, query string, sess *Session) ([]Fragment, error) {
	qvec := e.gateway.EmbedText(ctx, query)
	if memory.IsZeroVector(qvec) {
		// Embedding degraded; nothing can match a zero vector.
		return nil, nil
	}

	topK := e.config.Count * e.config.Headroom
	matches, err := e.store.SearchBySimilarity(ctx, memory.TableKnowledge, qvec, roomID, e.config.Threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("vector fetch: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	frags := e.rerank(query, matches)

	if len(frags) > e.config.Count {
		frags = frags[:e.config.Count]
	}
	if sess != nil && e.config.SampleSize > 0 {
		frags = sess.sample(frags, e.config.SampleSize)
	}

	e.logger.Debug("retrieval complete",
		zap.String("room", roomID),
		zap.Int("candidates", len(matches)),
		zap.Int("returned", len(frags)))
	return frags, nil
}

// rerank blends vector similarity, keyword overlap and recency into a
// single score and sorts descending, ties broken by most recent record.
func (e *Engine) rerank(query string, matches []memory.Match) []Fragment {
	keywords := tokenize(query)
	now := e.now()

	frags := make([]Fragment, 0, len(matches))
	for _, m := range matches {
		score := e.config.WeightVector*m.Similarity +
			e.config.WeightKeyword*keywordSimilarity(keywords, m.Record.Content.Text) +
			e.config.WeightRecency*recencyScore(m.Record.CreatedAt, now, e.config.RecencyHalfLife)
		frags = append(frags, Fragment{Record: m.Record, Similarity: m.Similarity, Score: score})
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Score != frags[j].Score {
			return frags[i].Score > frags[j].Score
		}
		return frags[i].Record.CreatedAt.After(frags[j].Record.CreatedAt)
	})
	return frags
}

// FormatContext renders fragments into a prompt-friendly block.
func FormatContext(frags []Fragment) string {
	if len(frags) == 0 {
		return ""
	}
	out := "## Relevant Knowledge\n\n"
	for i, f := range frags {
		out += fmt.Sprintf("%d. %s\n", i+1, f.Record.Content.Text)
	}
	return out
}
