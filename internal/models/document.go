package models

// Document is the text fetched from one URL.
type Document struct {
	SourceURL   string
	FinalURL    string
	ContentType string
	Content     string
}

// Chunk represents a split piece of a document
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

// ChunkEmbedding pairs a chunk with its vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32 `json:"-"`
}

type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
