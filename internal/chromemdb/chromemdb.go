package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

const (
	metaSource  = "source"
	metaChunkID = "chunk_id"
)

var errNoEmbedding = errors.New("chromemdb: documents must carry precomputed embeddings")

// VectorDBManager owns one in-memory chromem collection. Each index gets its
// own manager so dropping it never touches another session.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorDBManager creates an in-memory database holding one collection
func NewVectorDBManager(collectionName string) (*VectorDBManager, error) {
	m := &VectorDBManager{db: chromem.NewDB()}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return c, nil
}

// vectors are always supplied by the caller's embedder
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

// AddChunks bulk-adds embedded chunks in one call
func (m *VectorDBManager) AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s-%d", m.collection.Name, c.ChunkID),
			Content: c.Content,
			Metadata: map[string]string{
				metaSource:  c.Source,
				metaChunkID: strconv.Itoa(c.ChunkID),
			},
			Embedding: c.Embedding,
		})
	}
	log.Debug().Str("collection", m.collection.Name).Int("documents", len(docs)).Msg("Adding documents to vector database")
	return m.CreateDocs(ctx, docs)
}

// Read retrieves documents by similarity search
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	return results, nil
}

// Search returns up to k chunks ordered by descending cosine similarity,
// equal scores by ascending ChunkID. chromem picks an arbitrary subset among
// tied scores, so the whole collection is ranked before cutting to k.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	n := m.Count()
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       n,
	})
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		id, _ := strconv.Atoi(r.Metadata[metaChunkID])
		scored = append(scored, models.ScoredChunk{
			Chunk: models.Chunk{
				Content: r.Content,
				Source:  r.Metadata[metaSource],
				ChunkID: id,
			},
			Score: r.Similarity,
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})
	return scored[:k], nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Drop deletes the collection
func (m *VectorDBManager) Drop(context.Context) error {
	err := m.db.DeleteCollection(m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}
