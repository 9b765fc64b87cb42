package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/chromemdb"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/embedding"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/helper"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

type Splitter interface {
	Split(doc models.Document) ([]models.Chunk, error)
}

// VectorStore is the similarity index behind an Index.
type VectorStore interface {
	AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) error
	Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error)
	Count() int
	Drop(ctx context.Context) error
}

// StoreFactory creates an empty store for one index.
type StoreFactory func(ctx context.Context, name string, dimension int) (VectorStore, error)

// ChromemStores is the default in-memory StoreFactory.
func ChromemStores(_ context.Context, name string, _ int) (VectorStore, error) {
	return chromemdb.NewVectorDBManager(name)
}

type Options struct {
	// Dimension every vector must have; 0 accepts whatever the first vector has.
	Dimension int
	NewStore  StoreFactory
}

type Pipeline struct {
	fetcher   Fetcher
	splitter  Splitter
	embedder  embeddings.Embedder
	dimension int
	newStore  StoreFactory
}

func NewPipeline(fetcher Fetcher, splitter Splitter, embedder embeddings.Embedder, opts Options) *Pipeline {
	if opts.NewStore == nil {
		opts.NewStore = ChromemStores
	}
	return &Pipeline{
		fetcher:   fetcher,
		splitter:  splitter,
		embedder:  embedder,
		dimension: opts.Dimension,
		newStore:  opts.NewStore,
	}
}

// Load fetches url and splits it without embedding anything.
func (p *Pipeline) Load(ctx context.Context, url string) ([]models.Chunk, error) {
	doc, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, url)
	}

	chunks, err := p.splitter.Split(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSplit, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks from %s", ErrEmptyDocument, url)
	}
	return chunks, nil
}

// BuildIndex fetches, splits, embeds and indexes the page at url. It either
// returns a complete index or an error; a half-built store is dropped.
func (p *Pipeline) BuildIndex(ctx context.Context, url string) (*Index, error) {
	start := time.Now()

	chunks, err := p.Load(ctx, url)
	if err != nil {
		return nil, err
	}

	embedded, err := embedding.GenerateEmbedding(ctx, p.embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	dim, err := p.checkDimension(embedded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	store, err := p.newStore(ctx, id, dim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	if err := store.AddChunks(ctx, embedded); err != nil {
		if dropErr := store.Drop(context.WithoutCancel(ctx)); dropErr != nil {
			log.Warn().Err(dropErr).Str("index", id).Msg("Failed to drop partial index")
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	log.Info().
		Str("url", url).
		Str("index", id).
		Int("chunks", len(embedded)).
		Int("dimension", dim).
		Dur("took", time.Since(start)).
		Msg("Built index")

	return &Index{
		ID:        id,
		Source:    url,
		Chunks:    len(embedded),
		Dimension: dim,
		store:     store,
		embedder:  p.embedder,
	}, nil
}

func (p *Pipeline) checkDimension(embedded []models.ChunkEmbedding) (int, error) {
	dim := p.dimension
	if dim <= 0 {
		dim = len(embedded[0].Embedding)
	}
	for _, e := range embedded {
		if len(e.Embedding) != dim {
			return 0, fmt.Errorf("chunk %d has dimension %d, want %d", e.ChunkID, len(e.Embedding), dim)
		}
	}
	return dim, nil
}

// Index is a built, immutable index over one document. It keeps the
// embedder it was built with, so queries always use the same model.
type Index struct {
	ID        string
	Source    string
	Chunks    int
	Dimension int

	store    VectorStore
	embedder embeddings.Embedder
}

var errEmptyQuery = errors.New("empty query")

// Search returns up to k chunks nearest to query, most similar first.
// k <= 0 means models.DefaultTopK; k larger than the index returns everything.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errEmptyQuery
	}
	if k <= 0 {
		k = models.DefaultTopK
	}
	if k > idx.Chunks {
		k = idx.Chunks
	}

	vec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vec) != idx.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrEmbedding, len(vec), idx.Dimension)
	}

	results, err := idx.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("index", idx.ID).Int("k", k).Int("results", len(results)).Msg("Searched index")
	return results, nil
}

// Retrieve is Search without scores.
func (idx *Index) Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	results, err := idx.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// Close releases the underlying store.
func (idx *Index) Close(ctx context.Context) error {
	return idx.store.Drop(ctx)
}
