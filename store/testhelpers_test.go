package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat_history.db"))
	require.NoError(t, err)
	h, err := NewHistoryStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}
