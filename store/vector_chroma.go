package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/itish2003/docchat/models"
)

const chromaSourceKey = "source"

// ChromaStore keeps chunks in a Chroma collection created with cosine space,
// so a returned distance d maps to similarity 1-d. Equal scores come back in
// HNSW order, not insertion order, and Chroma reports its own dimension
// errors, which surface as index errors.
type ChromaStore struct {
	collection chromago.Collection
	mu         sync.RWMutex
}

// OpenChromaCollection gets or creates the named collection.
func OpenChromaCollection(ctx context.Context, client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "document chat knowledge base"),
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}
	return collection, nil
}

func NewChromaStore(collection chromago.Collection) *ChromaStore {
	return &ChromaStore{collection: collection}
}

func (s *ChromaStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(ctx, chunks)
}

func (s *ChromaStore) add(ctx context.Context, chunks []models.Chunk) error {
	ids := make([]chromago.DocumentID, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	vectors := make([]embeddings.Embedding, 0, len(chunks))
	metadatas := make([]chromago.DocumentMetadata, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, chromago.DocumentID(c.ID))
		texts = append(texts, c.Text)
		vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(c.Embedding))
		metadatas = append(metadatas, chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(chromaSourceKey, c.Source),
		))
	}

	err := s.collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("failed to add %d chunks to chromadb: %w", len(chunks), err)
	}
	return nil
}

// ReplaceSource adds chunks under their new ids first and only then deletes
// the ids the source had before, so a failed add leaves the old version.
func (s *ChromaStore) ReplaceSource(ctx context.Context, source string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.collection.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get documents from chromadb: %w", err)
	}
	ids := results.GetIDs()
	metadatas := results.GetMetadatas()
	var old []chromago.DocumentID
	for i, id := range ids {
		if i < len(metadatas) && metadataString(metadatas[i], chromaSourceKey) == source {
			old = append(old, id)
		}
	}

	if len(chunks) > 0 {
		if err := s.add(ctx, chunks); err != nil {
			return err
		}
	}
	if len(old) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, chromago.WithIDsDelete(old...)); err != nil {
		return fmt.Errorf("failed to delete previous chunks of %s: %w", source, err)
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items in collection: %w", err)
	}
	if int(count) == 0 {
		return []models.ScoredChunk{}, nil
	}
	if int(count) < k {
		k = int(count)
	}

	results, err := s.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()

	scored := []models.ScoredChunk{}
	if len(documentGroups) == 0 {
		return scored, nil
	}
	for i, doc := range documentGroups[0] {
		c := models.Chunk{Text: doc.ContentString()}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			c.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			c.Source = metadataString(metadataGroups[0][i], chromaSourceKey)
		}
		var score float64
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = 1 - float64(distanceGroups[0][i])
		}
		scored = append(scored, models.ScoredChunk{Chunk: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

func (s *ChromaStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteBySource(ctx, source)
}

func (s *ChromaStore) deleteBySource(ctx context.Context, source string) error {
	where := chromago.EqString(chromaSourceKey, source)
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	return nil
}

func (s *ChromaStore) ListSources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSources(ctx)
}

func (s *ChromaStore) listSources(ctx context.Context) ([]string, error) {
	results, err := s.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}

	seen := make(map[string]struct{})
	for _, meta := range results.GetMetadatas() {
		if source := metadataString(meta, chromaSourceKey); source != "" {
			seen[source] = struct{}{}
		}
	}
	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

// Reset deletes every source. Chroma enforces the collection dimension on
// its own, so there is no local dimension record to clear.
func (s *ChromaStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := s.listSources(ctx)
	if err != nil {
		return err
	}
	for _, source := range sources {
		if err := s.deleteBySource(ctx, source); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChromaStore) Close() error {
	return nil
}

// metadataString reads a string attribute from chroma document metadata.
// DocumentMetadata has no exported accessor for raw values, so the metadata
// goes through its JSON form.
func metadataString(meta any, key string) string {
	if meta == nil {
		return ""
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return ""
	}
	v, _ := values[key].(string)
	return v
}
