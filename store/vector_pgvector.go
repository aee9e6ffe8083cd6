package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/itish2003/docchat/models"
)

var pgvectorSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS doc_chunks (
		seq       BIGSERIAL PRIMARY KEY,
		id        TEXT NOT NULL UNIQUE,
		source    TEXT NOT NULL,
		content   TEXT NOT NULL,
		embedding vector NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS doc_chunks_source_idx ON doc_chunks (source)`,
}

// PgVectorStore keeps chunks in Postgres and ranks them with the pgvector
// cosine distance operator.
type PgVectorStore struct {
	db *sql.DB
	mu sync.RWMutex
}

func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func NewPgVectorStore(db *sql.DB) (*PgVectorStore, error) {
	for _, stmt := range pgvectorSchema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create pgvector schema: %w", err)
		}
	}
	return &PgVectorStore{db: db}, nil
}

func (s *PgVectorStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dim, err := pgDimension(ctx, tx)
	if err != nil {
		return err
	}
	if err := insertPgChunks(ctx, tx, dim, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceSource swaps every chunk of source for chunks in one transaction.
// The dimension is read before the delete so replacing the only document
// cannot change it.
func (s *PgVectorStore) ReplaceSource(ctx context.Context, source string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dim, err := pgDimension(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	if err := insertPgChunks(ctx, tx, dim, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertPgChunks(ctx context.Context, tx *sql.Tx, dim int, chunks []models.Chunk) error {
	if dim == 0 && len(chunks) > 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if len(c.Embedding) != dim {
			return dimensionMismatch(c.ID, len(c.Embedding), dim)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO doc_chunks (id, source, content, embedding) VALUES ($1, $2, $3, $4)`,
			c.ID, c.Source, c.Text, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dim, err := pgDimension(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(vector) != dim {
		return nil, dimensionMismatch("query", len(vector), dim)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, content, 1 - (embedding <=> $1) AS score
		FROM doc_chunks
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.ScoredChunk{}
	for rows.Next() {
		var r models.ScoredChunk
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to read chunk: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgVectorStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	return nil
}

func (s *PgVectorStore) ListSources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM doc_chunks ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	sources := []string{}
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to read source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Reset empties the table; the dimension is derived from stored rows, so an
// empty table accepts any dimension again.
func (s *PgVectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Close() error {
	return s.db.Close()
}

func pgDimension(ctx context.Context, q queryRower) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT vector_dims(embedding) FROM doc_chunks LIMIT 1`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index dimension: %w", err)
	}
	return dim, nil
}
