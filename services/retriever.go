package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/itish2003/docchat/models"
)

const (
	DefaultTopK            = 3
	DefaultMaxContextBytes = 2500
	contextSeparator       = "\n"
)

type searcher interface {
	Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error)
}

type Retriever struct {
	index searcher
}

func NewRetriever(index searcher) *Retriever {
	return &Retriever{index: index}
}

// Retrieve queries the index for the k best chunks and builds the prompt
// context from their text, cut to at most maxContextBytes. Non-positive
// arguments use the defaults.
func (r *Retriever) Retrieve(ctx context.Context, query string, k, maxContextBytes int) (models.RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if maxContextBytes <= 0 {
		maxContextBytes = DefaultMaxContextBytes
	}

	chunks, err := r.index.Query(ctx, query, k)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	result := models.RetrievalResult{Chunks: chunks, Sources: []string{}}
	if len(chunks) == 0 {
		return result, nil
	}

	texts := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Chunk.Text)
		if _, ok := seen[c.Chunk.Source]; ok || c.Chunk.Source == "" {
			continue
		}
		seen[c.Chunk.Source] = struct{}{}
		result.Sources = append(result.Sources, c.Chunk.Source)
	}
	result.Context = truncateBytes(strings.Join(texts, contextSeparator), maxContextBytes)
	return result, nil
}

// truncateBytes cuts s to at most n bytes, backing off to a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
