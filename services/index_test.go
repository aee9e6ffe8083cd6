package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/models"
)

func TestEmbeddingIndexAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("Splits large adds into bounded batches", func(t *testing.T) {
		s := &recordingStore{}
		x := NewEmbeddingIndex(s, &keywordEmbedder{}, IndexBatchSize, testLogger)
		chunks := make([]models.Chunk, 250)
		for i := range chunks {
			chunks[i] = models.Chunk{ID: fmt.Sprintf("c%d", i), Text: "text", Source: "big.txt"}
		}

		require.NoError(t, x.Add(ctx, chunks))

		assert.Equal(t, []int{100, 100, 50}, s.batches)
		assert.Len(t, s.chunks, 250)
		assert.NotEmpty(t, s.chunks[249].Embedding)
		assert.Empty(t, chunks[0].Embedding, "caller's slice is not modified")
	})

	t.Run("Surfaces embedder failures as index errors", func(t *testing.T) {
		s := &recordingStore{}
		x := NewEmbeddingIndex(s, &keywordEmbedder{err: errUnavailable}, IndexBatchSize, testLogger)

		err := x.Add(ctx, []models.Chunk{{ID: "a", Text: "t", Source: "a.txt"}})

		assert.ErrorIs(t, err, models.ErrIndex)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Empty(t, s.chunks)
	})

	t.Run("Keeps dimension mismatches as configuration errors", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})
		require.NoError(t, x.Add(ctx, []models.Chunk{{ID: "a", Text: "refund", Source: "a.txt"}}))

		err := x.Add(ctx, []models.Chunk{{ID: "b", Text: "t", Source: "b.txt", Embedding: []float32{1, 2}}})

		assert.ErrorIs(t, err, models.ErrConfiguration)
		assert.NotErrorIs(t, err, models.ErrIndex)
	})
}

func TestEmbeddingIndexReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("Swaps the chunks of one source only", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})
		require.NoError(t, x.Add(ctx, []models.Chunk{
			{ID: "a_old", Text: "refund", Source: "a.txt"},
			{ID: "b_0", Text: "shipping", Source: "b.txt"},
		}))

		require.NoError(t, x.Replace(ctx, "a.txt", []models.Chunk{{ID: "a_new", Text: "refund policy", Source: "a.txt"}}))

		results, err := x.Query(ctx, "refund", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a_new", results[0].Chunk.ID)
		n, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Leaves the previous version when embedding fails", func(t *testing.T) {
		embedder := &keywordEmbedder{}
		x := newTestIndex(t, embedder)
		require.NoError(t, x.Add(ctx, []models.Chunk{{ID: "a_old", Text: "refund", Source: "a.txt"}}))
		embedder.err = errUnavailable

		err := x.Replace(ctx, "a.txt", []models.Chunk{{ID: "a_new", Text: "refund v2", Source: "a.txt"}})

		assert.ErrorIs(t, err, models.ErrIndex)
		embedder.err = nil
		results, err := x.Query(ctx, "refund", 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a_old", results[0].Chunk.ID)
	})
}

func TestEmbeddingIndexQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns an empty result before anything is added", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})

		results, err := x.Query(ctx, "anything at all", 3)

		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Returns at most k results in non-increasing similarity", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})
		require.NoError(t, x.Add(ctx, []models.Chunk{
			{ID: "1", Text: "shipping takes a week", Source: "faq.txt"},
			{ID: "2", Text: "refund within 30 days, refund in full", Source: "manual.txt"},
			{ID: "3", Text: "code samples", Source: "dev.txt"},
			{ID: "4", Text: "refund and shipping", Source: "faq.txt"},
		}))

		results, err := x.Query(ctx, "refund", 2)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "2", results[0].Chunk.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("Surfaces embedder failures", func(t *testing.T) {
		x := NewEmbeddingIndex(&recordingStore{}, &keywordEmbedder{err: errUnavailable}, 0, testLogger)

		_, err := x.Query(ctx, "refund", 3)

		assert.ErrorIs(t, err, models.ErrIndex)
	})
}

func TestEmbeddingIndexDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Removes exactly the chunks of one source", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})
		require.NoError(t, x.Add(ctx, []models.Chunk{
			{ID: "m0", Text: "refund", Source: "manual.txt"},
			{ID: "m1", Text: "shipping", Source: "manual.txt"},
			{ID: "f0", Text: "refund", Source: "faq.txt"},
		}))

		require.NoError(t, x.Delete(ctx, "manual.txt"))

		sources, err := x.ListSources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"faq.txt"}, sources)
		n, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Succeeds for an unknown source", func(t *testing.T) {
		x := newTestIndex(t, &keywordEmbedder{})

		assert.NoError(t, x.Delete(ctx, "nope.txt"))
	})

	t.Run("Lists sources sorted", func(t *testing.T) {
		x := NewEmbeddingIndex(&recordingStore{}, &keywordEmbedder{}, 0, testLogger)

		sources, err := x.ListSources(ctx)

		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, sources)
	})
}
