package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// keywordEmbedder maps text onto a small bag-of-keywords vector so tests can
// steer similarity without a model.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var embedKeywords = []string{"refund", "shipping", "code", "weather"}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(embedKeywords)+1)
	for i, kw := range embedKeywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[len(embedKeywords)] = 0.1
	return vec, nil
}

type fakeGenerator struct {
	reply    string
	err      error
	received []models.Message
	wait     bool
}

func (g *fakeGenerator) Generate(ctx context.Context, messages []models.Message) (string, error) {
	g.received = messages
	if g.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func newTestIndex(t *testing.T, embedder Embedder) *EmbeddingIndex {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	s, err := store.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewEmbeddingIndex(s, embedder, IndexBatchSize, testLogger)
}

func newTestHistory(t *testing.T) *store.HistoryStore {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chat_history.db"))
	require.NoError(t, err)
	h, err := store.NewHistoryStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

// recordingStore is an in-memory VectorStore that records batch sizes.
type recordingStore struct {
	batches []int
	chunks  []models.Chunk
	err     error
}

func (s *recordingStore) Add(_ context.Context, chunks []models.Chunk) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, len(chunks))
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *recordingStore) Query(context.Context, []float32, int) ([]models.ScoredChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []models.ScoredChunk{}, nil
}

func (s *recordingStore) DeleteBySource(context.Context, string) error { return s.err }

func (s *recordingStore) ReplaceSource(_ context.Context, source string, chunks []models.Chunk) error {
	if s.err != nil {
		return s.err
	}
	kept := s.chunks[:0:0]
	for _, c := range s.chunks {
		if c.Source != source {
			kept = append(kept, c)
		}
	}
	s.batches = append(s.batches, len(chunks))
	s.chunks = append(kept, chunks...)
	return nil
}

func (s *recordingStore) ListSources(context.Context) ([]string, error) {
	return []string{"b.txt", "a.txt"}, s.err
}

func (s *recordingStore) Count(context.Context) (int, error) { return len(s.chunks), s.err }

func (s *recordingStore) Reset(context.Context) error { return s.err }

var errUnavailable = errors.New("connection refused")
