package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/itish2003/docchat/models"
)

const sqliteVectorSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	source    TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

// SQLiteStore is a durable brute-force vector store. Every query scans all
// stored embeddings, which keeps ranking exact and ties in insertion order.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteVectorSchema); err != nil {
		return nil, fmt.Errorf("failed to create vector schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, chunks []models.Chunk) error {
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

	if err := insertSQLiteChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceSource swaps every chunk of source for chunks in one transaction.
// On any error the previous chunks of source stay in place.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, source string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	if len(chunks) > 0 {
		if err := insertSQLiteChunks(ctx, tx, chunks); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSQLiteChunks(ctx context.Context, tx *sql.Tx, chunks []models.Chunk) error {
	dim, err := sqliteDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(chunks[0].Embedding)
		if dim == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunks[0].ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`, dim); err != nil {
			return fmt.Errorf("failed to record index dimension: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, source, content, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return dimensionMismatch(c.ID, len(c.Embedding), dim)
		}
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Text, embedding); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dim, err := sqliteDimension(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(vector) != dim {
		return nil, dimensionMismatch("query", len(vector), dim)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, source, content, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var c models.Chunk
		var raw []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Text, &raw); err != nil {
			return nil, fmt.Errorf("failed to read chunk: %w", err)
		}
		if err := json.Unmarshal(raw, &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", c.ID, err)
		}
		results = append(results, models.ScoredChunk{Chunk: c, Score: cosineSimilarity(vector, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []models.ScoredChunk{}
	}
	return results, nil
}

func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	return nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM chunks ORDER BY source`)
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

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Reset removes every chunk and forgets the recorded dimension.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("failed to clear index metadata: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteDimension(ctx context.Context, q queryRower) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index dimension: %w", err)
	}
	return dim, nil
}

func dimensionMismatch(what string, got, want int) error {
	return fmt.Errorf("%w: embedding dimension %d for %s does not match index dimension %d; rebuild the index after changing the embedding model",
		models.ErrConfiguration, got, what, want)
}
