package services

import "strings"

const paragraphSeparator = "\n\n"

// ChunkText splits document text into paragraphs on blank lines. Pieces are
// trimmed and empty ones dropped; there is no size cap, overlap or merging,
// so very short and very long paragraphs pass through unchanged.
func ChunkText(text string) []string {
	var chunks []string
	for _, piece := range strings.Split(text, paragraphSeparator) {
		if piece = strings.TrimSpace(piece); piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}
