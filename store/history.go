package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/itish2003/docchat/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	role    TEXT NOT NULL,
	content TEXT NOT NULL
)`

// HistoryStore is the append-only conversation log. Appends are serialized so
// ids come out strictly increasing with no gaps between successful writes.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func (h *HistoryStore) Append(ctx context.Context, role models.Role, content string) (models.ChatTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.db.ExecContext(ctx, `INSERT INTO messages (role, content) VALUES (?, ?)`, string(role), content)
	if err != nil {
		return models.ChatTurn{}, fmt.Errorf("failed to append %s turn: %w", role, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.ChatTurn{}, fmt.Errorf("failed to read turn id: %w", err)
	}
	return models.ChatTurn{ID: id, Role: role, Content: content}, nil
}

// All returns every turn, oldest first.
func (h *HistoryStore) All(ctx context.Context) ([]models.ChatTurn, error) {
	return h.query(ctx, `SELECT id, role, content FROM messages ORDER BY id ASC`)
}

// Recent returns the last n turns, oldest first.
func (h *HistoryStore) Recent(ctx context.Context, n int) ([]models.ChatTurn, error) {
	if n <= 0 {
		return []models.ChatTurn{}, nil
	}
	return h.query(ctx, `SELECT id, role, content FROM (
		SELECT id, role, content FROM messages ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`, n)
}

func (h *HistoryStore) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}

func (h *HistoryStore) query(ctx context.Context, q string, args ...any) ([]models.ChatTurn, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	turns := []models.ChatTurn{}
	for rows.Next() {
		var t models.ChatTurn
		var role string
		if err := rows.Scan(&t.ID, &role, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to read turn: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
