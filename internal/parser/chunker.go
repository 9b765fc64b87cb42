package parser

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

const (
	DefaultChunkSize    = 1000 // characters
	DefaultChunkOverlap = 200  // characters
)

// paragraph, line, sentence, word, then a hard character cut
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits documents into overlapping chunks on the largest boundary
// that keeps each chunk within the size limit.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 5
		}
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}
}

func (c *Chunker) Split(doc models.Document) ([]models.Chunk, error) {
	parts, err := c.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %v", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content: part,
			Source:  doc.SourceURL,
			ChunkID: len(chunks) + 1,
		})
	}
	return chunks, nil
}
