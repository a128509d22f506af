// Package pg implements vector.Store on PostgreSQL with the pgvector
// extension. All collections share one table keyed by a collection column;
// similarity is cosine, computed by the <=> operator.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/clearway/claimflow/vector"
)

// Config holds pgvector store configuration.
type Config struct {
	DSN       string
	Dimension int
	TableName string
}

// Store is a pgvector-backed vector.Store.
type Store struct {
	db        *sql.DB
	dimension int
	table     string
}

// New connects to PostgreSQL, enables the vector extension, and ensures the
// embeddings table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.TableName == "" {
		cfg.TableName = "embeddings"
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}

	s := &Store{db: db, dimension: cfg.Dimension, table: cfg.TableName}
	if err := s.setup(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection; used when the relational stores
// share the same database.
func NewWithDB(ctx context.Context, db *sql.DB, dimension int, table string) (*Store, error) {
	if table == "" {
		table = "embeddings"
	}
	s := &Store{db: db, dimension: dimension, table: table}
	if err := s.setup(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: create extension: %w", err)
	}
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		collection VARCHAR(64) NOT NULL,
		id VARCHAR(255) NOT NULL,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)`, s.table, s.dimension)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces one document.
func (s *Store) Upsert(ctx context.Context, collection string, doc vector.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("pgvector: document ID cannot be empty")
	}
	if len(doc.Vector) != s.dimension {
		return fmt.Errorf("pgvector: dimension mismatch: expected %d, got %d", s.dimension, len(doc.Vector))
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("pgvector: marshal metadata: %w", err)
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (collection, id, text, embedding, metadata, created_at)
	VALUES ($1, $2, $3, $4::vector, $5::jsonb, $6)
	ON CONFLICT (collection, id) DO UPDATE SET
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata
	`, s.table)

	_, err = s.db.ExecContext(ctx, query, collection, doc.ID, doc.Text,
		vectorLiteral(doc.Vector), metadata, createdAt)
	if err != nil {
		return fmt.Errorf("pgvector: upsert %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// Search runs a cosine scan over the collection. Matches come back ordered by
// similarity descending with recency breaking ties; metadata filters apply as
// JSONB containment.
func (s *Store) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("pgvector: query dimension mismatch: expected %d, got %d", s.dimension, len(q.Vector))
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	args := []any{q.Collection, vectorLiteral(q.Vector)}
	where := "collection = $1"
	if len(q.Filters) > 0 {
		filter, err := json.Marshal(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("pgvector: marshal filters: %w", err)
		}
		args = append(args, filter)
		where += " AND metadata @> $3::jsonb"
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
	SELECT id, text, metadata, created_at, 1 - (embedding <=> $2::vector) AS score
	FROM %s
	WHERE %s
	ORDER BY score DESC, created_at DESC
	LIMIT $%d
	`, s.table, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", q.Collection, err)
	}
	defer rows.Close()

	matches := make([]vector.Match, 0, topK)
	for rows.Next() {
		var (
			m        vector.Match
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &metadata, &m.CreatedAt, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan match: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("pgvector: unmarshal metadata for %s: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate matches: %w", err)
	}
	return matches, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE collection = $1", s.table)
	if err := s.db.QueryRowContext(ctx, query, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgvector: count %s: %w", collection, err)
	}
	return count, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
