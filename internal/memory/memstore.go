package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/ravenmoor/internal/embedding"
)

// MemStore is an in-process Store used by the dev console and tests.
// Search is brute-force cosine over the room's records.
type MemStore struct {
	gateway *embedding.Gateway

	mu      sync.RWMutex
	records map[Table][]*Record
}

// NewMemStore creates an empty in-process store.
func NewMemStore(gateway *embedding.Gateway) *MemStore {
	return &MemStore{
		gateway: gateway,
		records: make(map[Table][]*Record),
	}
}

// Create persists a record, computing its embedding when absent.
func (s *MemStore) Create(ctx context.Context, rec *Record, unique bool) (string, error) {
	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Embedding == nil && stored.Content.Text != "" {
		stored.Embedding = s.gateway.EmbedText(ctx, stored.Content.Text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if unique {
		for _, existing := range s.records[stored.Table] {
			if existing.RoomID != stored.RoomID {
				continue
			}
			if existing.Content.Text == stored.Content.Text ||
				CosineSimilarity(existing.Embedding, stored.Embedding) >= uniqueSimilarity {
				return "", &DuplicateError{RoomID: stored.RoomID, ExistingID: existing.ID}
			}
		}
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	// Slice order is insertion order, which is the recency authority here
	// even when wall-clock timestamps collide.
	s.records[stored.Table] = append(s.records[stored.Table], &stored)
	return stored.ID, nil
}

// List returns up to count room records, most recent first.
func (s *MemStore) List(_ context.Context, table Table, roomID string, count int, unique bool) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[table]
	var out []*Record
	seen := make(map[string]bool)
	for i := len(all) - 1; i >= 0; i-- {
		rec := all[i]
		if rec.RoomID != roomID {
			continue
		}
		if unique {
			if seen[rec.Content.Text] {
				continue
			}
			seen[rec.Content.Text] = true
		}
		out = append(out, rec)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// SearchBySimilarity scans the room, shared records from other rooms
// included, and returns matches strictly above threshold, descending by
// similarity, ties broken by most recent creation.
func (s *MemStore) SearchBySimilarity(_ context.Context, table Table, emb []float32, roomID string, threshold float64, count int) ([]Match, error) {
	if IsZeroVector(emb) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rec := range s.records[table] {
		if roomID != "" && rec.RoomID != roomID && !rec.Shared {
			continue
		}
		sim := CosineSimilarity(emb, rec.Embedding)
		if sim > threshold {
			matches = append(matches, Match{Record: rec, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

// Remove deletes one record by id.
func (s *MemStore) Remove(_ context.Context, table Table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.records[table]
	for i, rec := range all {
		if rec.ID == id {
			s.records[table] = append(all[:i], all[i+1:]...)
			return nil
		}
	}
	return nil
}

// PurgeRoom deletes every record in the room. Idempotent.
func (s *MemStore) PurgeRoom(_ context.Context, table Table, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[table][:0]
	for _, rec := range s.records[table] {
		if rec.RoomID != roomID {
			kept = append(kept, rec)
		}
	}
	s.records[table] = kept
	return nil
}

// Count returns the number of records in the room.
func (s *MemStore) Count(_ context.Context, table Table, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records[table] {
		if rec.RoomID == roomID {
			n++
		}
	}
	return n, nil
}
