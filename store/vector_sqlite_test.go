package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/models"
)

func chunk(id, source string, vec ...float32) models.Chunk {
	return models.Chunk{ID: id, Text: "text of " + id, Source: source, Embedding: vec}
}

func TestSQLiteStoreQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns an empty result on an empty index", func(t *testing.T) {
		s := newTestSQLiteStore(t)

		results, err := s.Query(ctx, []float32{1, 0}, 3)

		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Ranks by cosine similarity and honours k", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{
			chunk("far", "a.txt", 0, 1),
			chunk("near", "a.txt", 1, 0),
			chunk("mid", "b.txt", 1, 1),
		}))

		results, err := s.Query(ctx, []float32{1, 0}, 2)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Chunk.ID)
		assert.Equal(t, "mid", results[1].Chunk.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		assert.Equal(t, "b.txt", results[1].Chunk.Source)
		assert.Equal(t, "text of mid", results[1].Chunk.Text)
	})

	t.Run("Breaks ties by insertion order", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("first", "a.txt", 2, 0)}))
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("second", "b.txt", 1, 0)}))
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("third", "c.txt", 3, 0)}))

		results, err := s.Query(ctx, []float32{1, 0}, 3)

		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"first", "second", "third"},
			[]string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID})
	})

	t.Run("Returns nothing for a non-positive k", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))

		results, err := s.Query(ctx, []float32{1, 0}, 0)

		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Rejects a query of the wrong dimension", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))

		_, err := s.Query(ctx, []float32{1, 0, 0}, 1)

		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestSQLiteStoreAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects a chunk whose dimension differs from the index", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))

		err := s.Add(ctx, []models.Chunk{chunk("y", "b.txt", 1, 0, 0)})

		assert.ErrorIs(t, err, models.ErrConfiguration)
		sources, err := s.ListSources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, sources)
	})

	t.Run("Rolls back the whole batch on a duplicate id", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))

		err := s.Add(ctx, []models.Chunk{chunk("y", "b.txt", 0, 1), chunk("x", "b.txt", 1, 1)})

		assert.Error(t, err)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Survives reopening the database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.db")
		db, err := OpenSQLite(path)
		require.NoError(t, err)
		s, err := NewSQLiteStore(db)
		require.NoError(t, err)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))
		require.NoError(t, s.Close())

		db, err = OpenSQLite(path)
		require.NoError(t, err)
		reopened, err := NewSQLiteStore(db)
		require.NoError(t, err)
		defer reopened.Close()

		results, err := reopened.Query(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "x", results[0].Chunk.ID)
	})

	t.Run("Handles concurrent writers and readers", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Add(ctx, []models.Chunk{chunk(fmt.Sprintf("c%d", i), fmt.Sprintf("s%d.txt", i), 1, float32(i))}))
			}(i)
			go func() {
				defer wg.Done()
				_, err := s.Query(ctx, []float32{1, 1}, 3)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, n)
	})
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Removes only the chunks of the given source", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{
			chunk("a1", "a.txt", 1, 0),
			chunk("a2", "a.txt", 0, 1),
			chunk("b1", "b.txt", 1, 1),
		}))

		require.NoError(t, s.DeleteBySource(ctx, "a.txt"))

		sources, err := s.ListSources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt"}, sources)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Treats an unknown source as a no-op", func(t *testing.T) {
		s := newTestSQLiteStore(t)

		assert.NoError(t, s.DeleteBySource(ctx, "missing.txt"))
	})

	t.Run("Reset forgets chunks and dimension", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("x", "a.txt", 1, 0)}))

		require.NoError(t, s.Reset(ctx))
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("y", "b.txt", 1, 0, 0)}))

		sources, err := s.ListSources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt"}, sources)
	})
}

func TestSQLiteStoreReplaceSource(t *testing.T) {
	ctx := context.Background()

	t.Run("Swaps the chunks of one source", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{
			chunk("a_old", "a.txt", 1, 0),
			chunk("b1", "b.txt", 0, 1),
		}))

		require.NoError(t, s.ReplaceSource(ctx, "a.txt", []models.Chunk{
			chunk("a_new1", "a.txt", 1, 0),
			chunk("a_new2", "a.txt", 1, 1),
		}))

		results, err := s.Query(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		ids := make([]string, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.Chunk.ID)
		}
		assert.ElementsMatch(t, []string{"a_new1", "a_new2", "b1"}, ids)
	})

	t.Run("Keeps the previous chunks when the insert fails", func(t *testing.T) {
		s := newTestSQLiteStore(t)
		require.NoError(t, s.Add(ctx, []models.Chunk{chunk("a_old", "a.txt", 1, 0)}))

		err := s.ReplaceSource(ctx, "a.txt", []models.Chunk{chunk("a_new", "a.txt", 1, 0, 0)})

		assert.ErrorIs(t, err, models.ErrConfiguration)
		results, err := s.Query(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a_old", results[0].Chunk.ID)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
