package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/nidhogg/ravenmoor/internal/memory"
	"go.uber.org/zap"
)

// Ingestor runs the chunking pipeline: source documents become overlapping
// knowledge records, embedded at creation time by the store.
type Ingestor struct {
	store  memory.Store
	config ChunkConfig
	logger *zap.Logger
}

// NewIngestor creates an Ingestor over the given store.
func NewIngestor(store memory.Store, cfg ChunkConfig, logger *zap.Logger) *Ingestor {
	if cfg.TokenBudget <= 0 {
		cfg = DefaultChunkConfig()
	}
	return &Ingestor{store: store, config: cfg, logger: logger}
}

// Document is a source text to be ingested.
type Document struct {
	Source  string // provenance label kept in record metadata
	Text    string
	AgentID string
	RoomID  string
	// Shared knowledge surfaces in similarity search from any room, not
	// just the one it was ingested into.
	Shared bool
}

// Ingest chunks the document and stores each fragment as a unique knowledge
// record. Fragments already present in the room are skipped, so re-ingesting
// the same document is idempotent. Returns the number of records created.
func (in *Ingestor) Ingest(ctx context.Context, doc Document) (int, error) {
	chunks := Chunk(doc.Text, in.config)
	if len(chunks) == 0 {
		return 0, nil
	}

	created := 0
	for i, chunk := range chunks {
		rec := &memory.Record{
			Table:   memory.TableKnowledge,
			AgentID: doc.AgentID,
			RoomID:  doc.RoomID,
			Unique:  true,
			Shared:  doc.Shared,
			Content: memory.Content{
				Text: chunk,
				Metadata: map[string]string{
					"source": doc.Source,
					"chunk":  fmt.Sprintf("%d/%d", i+1, len(chunks)),
				},
			},
		}
		if _, err := in.store.Create(ctx, rec, true); err != nil {
			var dup *memory.DuplicateError
			if errors.As(err, &dup) {
				continue
			}
			return created, fmt.Errorf("ingest chunk %d of %s: %w", i+1, doc.Source, err)
		}
		created++
	}

	in.logger.Info("document ingested",
		zap.String("source", doc.Source),
		zap.Int("chunks", len(chunks)),
		zap.Int("created", created))
	return created, nil
}
