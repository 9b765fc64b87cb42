package chromemdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

func embedded(id int, content string, vec ...float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		Chunk:     models.Chunk{Content: content, Source: "https://example.com/anime-x", ChunkID: id},
		Embedding: vec,
	}
}

func newManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("test-collection")
	require.NoError(t, err)
	require.NoError(t, m.AddChunks(context.Background(), []models.ChunkEmbedding{
		embedded(1, "east", 1, 0, 0),
		embedded(2, "north-east", 0.7, 0.7, 0),
		embedded(3, "north", 0, 1, 0),
		embedded(4, "up", 0, 0, 1),
	}))
	return m
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	m := newManager(t)
	assert.Equal(t, 4, m.Count())

	got, err := m.Search(context.Background(), []float32{1, 0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "east", got[0].Content)
	assert.Equal(t, "north-east", got[1].Content)
	assert.Equal(t, "north", got[2].Content)
	assert.Equal(t, 1, got[0].ChunkID)
	assert.Equal(t, "https://example.com/anime-x", got[0].Source)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestSearchClampsK(t *testing.T) {
	m := newManager(t)

	got, err := m.Search(context.Background(), []float32{0, 0, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, "up", got[0].Content)

	got, err = m.Search(context.Background(), []float32{0, 0, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchBreaksTiesByChunkID(t *testing.T) {
	m, err := NewVectorDBManager("ties")
	require.NoError(t, err)
	require.NoError(t, m.AddChunks(context.Background(), []models.ChunkEmbedding{
		embedded(3, "third", 1, 0),
		embedded(1, "first", 1, 0),
		embedded(2, "second", 1, 0),
	}))

	for i := 0; i < 5; i++ {
		got, err := m.Search(context.Background(), []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
	}
}

func TestSearchTiesBelowCount(t *testing.T) {
	m, err := NewVectorDBManager("tied-subset")
	require.NoError(t, err)
	chunks := make([]models.ChunkEmbedding, 0, 10)
	for id := 10; id >= 1; id-- {
		chunks = append(chunks, embedded(id, fmt.Sprintf("chunk %d", id), 0, 1))
	}
	require.NoError(t, m.AddChunks(context.Background(), chunks))

	for i := 0; i < 50; i++ {
		got, err := m.Search(context.Background(), []float32{0, 1}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
	}
}

func TestSearchWithQueryOptionsRequiresQuery(t *testing.T) {
	m := newManager(t)
	_, err := m.SearchWithQueryOptions(context.Background(), chromem.QueryOptions{NResults: 1})
	require.Error(t, err)
}

func TestAddChunksWithoutEmbeddingFails(t *testing.T) {
	m, err := NewVectorDBManager("no-embedding")
	require.NoError(t, err)
	err = m.AddChunks(context.Background(), []models.ChunkEmbedding{embedded(1, "text only")})
	require.Error(t, err)
}

func TestDrop(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Drop(context.Background()))
	assert.Nil(t, m.db.GetCollection("test-collection", nil))
}
