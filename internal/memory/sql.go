package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/vectorstore"
	"go.uber.org/zap"
)

// SQLStore is the durable Store: records live in PostgreSQL, their
// embeddings in per-table Qdrant collections. Qdrant is optional; without
// it similarity search degrades to empty results and unique-inserts fall
// back to exact text comparison.
type SQLStore struct {
	db      *pgxpool.Pool
	vectors *vectorstore.Client
	gateway *embedding.Gateway
	logger  *zap.Logger
}

// NewSQLStore connects the pgx pool and wires the optional vector index.
func NewSQLStore(dsn string, vectors *vectorstore.Client, gateway *embedding.Gateway, logger *zap.Logger) (*SQLStore, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &SQLStore{db: pool, vectors: vectors, gateway: gateway, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *SQLStore) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// InitCollections ensures a Qdrant collection exists per record table.
func (s *SQLStore) InitCollections(ctx context.Context) error {
	if s.vectors == nil {
		return nil
	}
	dim := uint64(s.gateway.Dimension())
	for _, table := range Tables() {
		if err := s.vectors.EnsureCollection(ctx, collectionFor(table), dim); err != nil {
			return fmt.Errorf("init collection %s: %w", table, err)
		}
	}
	return nil
}

func collectionFor(table Table) string {
	return "records_" + string(table)
}

// Create persists a record, computing its embedding when absent.
func (s *SQLStore) Create(ctx context.Context, rec *Record, unique bool) (string, error) {
	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Embedding == nil && stored.Content.Text != "" {
		stored.Embedding = s.gateway.EmbedText(ctx, stored.Content.Text)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	if unique {
		if existingID, err := s.findDuplicate(ctx, &stored); err != nil {
			return "", err
		} else if existingID != "" {
			return "", &DuplicateError{RoomID: stored.RoomID, ExistingID: existingID}
		}
	}

	contentJSON, err := json.Marshal(stored.Content)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO records (id, tbl, agent_id, user_id, room_id, content, created_at, is_unique, shared)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, string(stored.Table), stored.AgentID, stored.UserID, stored.RoomID,
		contentJSON, stored.CreatedAt, stored.Unique, stored.Shared,
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}

	// Zero vectors are stored in SQL but kept out of the index so they can
	// never surface as similarity matches.
	if s.vectors != nil && stored.Embedding != nil && !IsZeroVector(stored.Embedding) {
		payload := map[string]string{
			"room_id":  stored.RoomID,
			"agent_id": stored.AgentID,
			"shared":   strconv.FormatBool(stored.Shared),
		}
		if err := s.vectors.Upsert(ctx, collectionFor(stored.Table), stored.ID, stored.Embedding, payload); err != nil {
			s.logger.Warn("vector upsert failed, record stored without index",
				zap.String("id", stored.ID), zap.Error(err))
		}
	}
	return stored.ID, nil
}

// findDuplicate looks for semantically identical content in the same room.
// Shared records elsewhere do not count; uniqueness is per room.
func (s *SQLStore) findDuplicate(ctx context.Context, rec *Record) (string, error) {
	if s.vectors != nil && rec.Embedding != nil && !IsZeroVector(rec.Embedding) {
		hits, err := s.vectors.Search(ctx, collectionFor(rec.Table), rec.Embedding, rec.RoomID, uniqueSimilarity, 1, false)
		if err != nil {
			s.logger.Warn("duplicate check via index failed, falling back to exact match", zap.Error(err))
		} else if len(hits) > 0 {
			return hits[0].ID, nil
		}
	}

	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM records
		WHERE tbl = $1 AND room_id = $2 AND content->>'text' = $3
		LIMIT 1`,
		string(rec.Table), rec.RoomID, rec.Content.Text,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("duplicate check: %w", err)
	}
	return id, nil
}

// List returns up to count room records, most recent first.
func (s *SQLStore) List(ctx context.Context, table Table, roomID string, count int, unique bool) ([]*Record, error) {
	if count <= 0 {
		count = 50
	}
	// Over-fetch when collapsing duplicates so the cap still fills.
	limit := count
	if unique {
		limit = count * 4
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, tbl, agent_id, user_id, room_id, content, created_at, is_unique, shared
		FROM records
		WHERE tbl = $1 AND room_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, string(table), roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	seen := make(map[string]bool)
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		if unique {
			if seen[rec.Content.Text] {
				continue
			}
			seen[rec.Content.Text] = true
		}
		out = append(out, rec)
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

// SearchBySimilarity queries the vector index and hydrates matches from SQL.
// Shared records qualify regardless of their origin room. Without an index
// it returns an empty result.
func (s *SQLStore) SearchBySimilarity(ctx context.Context, table Table, emb []float32, roomID string, threshold float64, count int) ([]Match, error) {
	if s.vectors == nil {
		s.logger.Debug("similarity search skipped, no vector index")
		return nil, nil
	}
	if IsZeroVector(emb) {
		return nil, nil
	}

	hits, err := s.vectors.Search(ctx, collectionFor(table), emb, roomID, float32(threshold), uint64(count), true)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = float64(h.Score)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, tbl, agent_id, user_id, room_id, content, created_at, is_unique, shared
		FROM records
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		// The index score cutoff is inclusive; matches must strictly
		// exceed the threshold, as in the in-memory scan.
		if scores[rec.ID] <= threshold {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: scores[rec.ID]})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})
	return matches, nil
}

// Remove deletes one record by id from SQL and the index.
func (s *SQLStore) Remove(ctx context.Context, table Table, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND id = $2`, string(table), id); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, collectionFor(table), id); err != nil {
			s.logger.Warn("vector delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// PurgeRoom deletes every record in the room. Idempotent.
func (s *SQLStore) PurgeRoom(ctx context.Context, table Table, roomID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND room_id = $2`, string(table), roomID); err != nil {
		return fmt.Errorf("purge room: %w", err)
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteByRoom(ctx, collectionFor(table), roomID); err != nil {
			s.logger.Warn("vector purge failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	return nil
}

// Count returns the number of records in the room.
func (s *SQLStore) Count(ctx context.Context, table Table, roomID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM records WHERE tbl = $1 AND room_id = $2`,
		string(table), roomID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close shuts down the connection pool and the vector index client.
func (s *SQLStore) Close() {
	s.db.Close()
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			s.logger.Warn("vector client close failed", zap.Error(err))
		}
	}
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var table string
	var contentJSON []byte
	if err := scan(&rec.ID, &table, &rec.AgentID, &rec.UserID, &rec.RoomID,
		&contentJSON, &rec.CreatedAt, &rec.Unique, &rec.Shared); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.Table = Table(table)
	if err := json.Unmarshal(contentJSON, &rec.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return &rec, nil
}
