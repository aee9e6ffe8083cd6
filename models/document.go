package models

// Chunk is a single retrievable unit of text derived from a source document.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a chunk returned from a similarity query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds the ranked chunks for one query, the context text
// built from them and the distinct sources they came from.
type RetrievalResult struct {
	Chunks  []ScoredChunk `json:"chunks"`
	Context string        `json:"context"`
	Sources []string      `json:"sources"`
}

// Upload statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// UploadResult reports the outcome of ingesting one document.
type UploadResult struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Message  string `json:"message,omitempty"`
}

// DocumentsResponse is returned by GET /documents.
type DocumentsResponse struct {
	Documents []string `json:"documents"`
}

// OllamaEmbedRequest is used to structure the request to the Ollama embedding API.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse is used to parse the embedding from the Ollama API response.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
