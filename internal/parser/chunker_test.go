package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

// wordText builds n distinct five-character words separated by spaces
func wordText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	return strings.Join(words, " ")
}

// sharedBoundary is the longest suffix of prev that is also a prefix of next
func sharedBoundary(prev, next string) string {
	for n := min(len(prev), len(next)); n > 0; n-- {
		if strings.HasSuffix(prev, next[:n]) {
			return next[:n]
		}
	}
	return ""
}

func TestChunkerSplitsWithOverlap(t *testing.T) {
	text := wordText(834) // ~5000 characters
	doc := models.Document{SourceURL: "https://example.com/anime-x", Content: text}

	chunks, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap).Split(doc)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(chunks), 5)
	assert.LessOrEqual(t, len(chunks), 8)

	for i, c := range chunks {
		assert.Equal(t, i+1, c.ChunkID)
		assert.Equal(t, doc.SourceURL, c.Source)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), DefaultChunkSize)
		if i == 0 {
			continue
		}
		overlap := sharedBoundary(chunks[i-1].Content, c.Content)
		assert.NotEmpty(t, overlap, "chunk %d does not overlap chunk %d", i+1, i)
		assert.LessOrEqual(t, len(overlap), DefaultChunkOverlap)
	}

	// every word survives the split
	joined := ""
	for _, c := range chunks {
		joined += " " + c.Content
	}
	for _, w := range strings.Fields(text) {
		require.Contains(t, joined, w)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Content, "w0000"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1].Content, "w0833"))
}

func TestChunkerPrefersParagraphs(t *testing.T) {
	para := func(prefix string) string {
		return strings.Repeat(prefix+" ", 60) // 60 * (len+1) characters
	}
	text := strings.TrimSpace(para("alpha")) + "\n\n" + strings.TrimSpace(para("omega"))

	chunks, err := NewChunker(400, 50).Split(models.Document{Content: text})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0].Content, "omega")
	assert.NotContains(t, chunks[1].Content, "alpha")
}

func TestChunkerHardCutsLongTokens(t *testing.T) {
	text := strings.Repeat("a", 2500)

	chunks, err := NewChunker(1000, 200).Split(models.Document{Content: text})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 1000)
	}
}

func TestChunkerShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := NewChunker(1000, 200).Split(models.Document{Content: "Kaito is the main character."})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Kaito is the main character.", chunks[0].Content)
}

func TestChunkerEmptyDocument(t *testing.T) {
	chunks, err := NewChunker(1000, 200).Split(models.Document{Content: ""})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
