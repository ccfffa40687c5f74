package memory

import (
	"context"
	"math"
)

// Store is the boundary every memory backend implements.
//
// Recency within a room is defined solely by record creation order. Writes
// are append-only: records are never updated in place, only created and
// deleted, so concurrent readers never observe partial mutations.
type Store interface {
	// Create persists a record and returns its id. When unique is true and
	// a sufficiently similar record already exists in the same room and
	// table, Create fails with *DuplicateError. If the record carries text
	// but no embedding, the embedding is computed during Create.
	Create(ctx context.Context, rec *Record, unique bool) (string, error)

	// List returns up to count records from a room and table, most recent
	// first. When unique is true, records with duplicate text are collapsed
	// to their most recent occurrence.
	List(ctx context.Context, table Table, roomID string, count int, unique bool) ([]*Record, error)

	// SearchBySimilarity returns records whose cosine similarity to the
	// query embedding exceeds threshold, ordered by descending similarity,
	// capped at count. A missing vector index yields an empty result, not
	// an error.
	SearchBySimilarity(ctx context.Context, table Table, embedding []float32, roomID string, threshold float64, count int) ([]Match, error)

	// Remove hard-deletes one record by id.
	Remove(ctx context.Context, table Table, id string) error

	// PurgeRoom hard-deletes every record in a room. Idempotent.
	PurgeRoom(ctx context.Context, table Table, roomID string) error

	// Count returns the number of records in a room.
	Count(ctx context.Context, table Table, roomID string) (int, error)
}

// uniqueSimilarity is the floor above which two records count as the same
// content for unique-insert deduplication.
const uniqueSimilarity = 0.95

// CosineSimilarity computes the cosine similarity between two vectors.
// A zero vector on either side yields 0, so degraded embeddings never
// match anything. Mismatched dimensions also yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZeroVector reports whether every component of v is zero. Zero vectors
// are the degraded-embedding sentinel and must never match in search.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
