package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/itish2003/docchat/models"
)

// IndexBatchSize bounds how many chunks are embedded and written per call to
// the vector store.
const IndexBatchSize = 100

// VectorStore is the persistence behind the embedding index. Implementations
// live in the store package.
type VectorStore interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	DeleteBySource(ctx context.Context, source string) error
	// ReplaceSource swaps all chunks of source for chunks. A failure must
	// leave the previous chunks of source in place.
	ReplaceSource(ctx context.Context, source string, chunks []models.Chunk) error
	ListSources(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// EmbeddingIndex embeds chunk and query text and delegates storage and
// ranking to a VectorStore.
type EmbeddingIndex struct {
	store     VectorStore
	embedder  Embedder
	batchSize int
	log       *slog.Logger
}

func NewEmbeddingIndex(store VectorStore, embedder Embedder, batchSize int, log *slog.Logger) *EmbeddingIndex {
	if batchSize <= 0 {
		batchSize = IndexBatchSize
	}
	return &EmbeddingIndex{store: store, embedder: embedder, batchSize: batchSize, log: log}
}

// Add embeds and stores chunks in batches. Chunks that already carry an
// embedding are stored as-is.
func (x *EmbeddingIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += x.batchSize {
		end := min(start+x.batchSize, len(chunks))
		batch, err := x.embed(ctx, chunks[start:end])
		if err != nil {
			return err
		}

		if err := x.store.Add(ctx, batch); err != nil {
			return indexError("storing chunks", err)
		}
		indexedChunks.Add(float64(len(batch)))
		x.log.Debug("Stored chunk batch", slog.Int("size", len(batch)), slog.Int("offset", start))
	}
	return nil
}

// Replace embeds every chunk, batch by batch, before touching the store and
// then swaps them in for the chunks source had. Any failure leaves the
// previous version of source searchable.
func (x *EmbeddingIndex) Replace(ctx context.Context, source string, chunks []models.Chunk) error {
	embedded := make([]models.Chunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += x.batchSize {
		end := min(start+x.batchSize, len(chunks))
		batch, err := x.embed(ctx, chunks[start:end])
		if err != nil {
			return err
		}
		embedded = append(embedded, batch...)
	}

	if err := x.store.ReplaceSource(ctx, source, embedded); err != nil {
		return indexError("replacing source "+source, err)
	}
	indexedChunks.Add(float64(len(embedded)))
	x.log.Debug("Replaced source", slog.String("source", source), slog.Int("chunks", len(embedded)))
	return nil
}

// embed returns a copy of chunks with every missing embedding filled in.
func (x *EmbeddingIndex) embed(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	batch := make([]models.Chunk, len(chunks))
	copy(batch, chunks)
	for i := range batch {
		if len(batch[i].Embedding) > 0 {
			continue
		}
		vec, err := x.embedder.Embed(ctx, batch[i].Text)
		if err != nil {
			return nil, indexError(fmt.Sprintf("embedding chunk %s", batch[i].ID), err)
		}
		batch[i].Embedding = vec
	}
	return batch, nil
}

// Query returns up to k chunks most similar to text, best first.
func (x *EmbeddingIndex) Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	start := time.Now()
	defer func() { indexQueryDuration.Observe(time.Since(start).Seconds()) }()

	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, indexError("embedding query", err)
	}
	results, err := x.store.Query(ctx, vec, k)
	if err != nil {
		return nil, indexError("querying chunks", err)
	}
	return results, nil
}

// Delete removes every chunk of source. Unknown sources are not an error.
func (x *EmbeddingIndex) Delete(ctx context.Context, source string) error {
	if err := x.store.DeleteBySource(ctx, source); err != nil {
		return indexError("deleting source "+source, err)
	}
	return nil
}

// ListSources returns the distinct sources present, sorted.
func (x *EmbeddingIndex) ListSources(ctx context.Context) ([]string, error) {
	sources, err := x.store.ListSources(ctx)
	if err != nil {
		return nil, indexError("listing sources", err)
	}
	sort.Strings(sources)
	return sources, nil
}

func (x *EmbeddingIndex) Count(ctx context.Context) (int, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return 0, indexError("counting chunks", err)
	}
	return n, nil
}

// Reset drops every chunk. Only the explicit rebuild path calls it.
func (x *EmbeddingIndex) Reset(ctx context.Context) error {
	if err := x.store.Reset(ctx); err != nil {
		return indexError("resetting index", err)
	}
	return nil
}

// indexError tags err as an index failure unless it is already a
// configuration error, which callers need to tell apart.
func indexError(op string, err error) error {
	if errors.Is(err, models.ErrConfiguration) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrIndex, op, err)
}
