package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/config"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

// Document is one row of an index table. The table name is chosen per index.
type Document struct {
	bun.BaseModel `bun:"alias:d"`
	ID            int64  `bun:"id,pk,autoincrement"`
	ChunkID       int    `bun:"chunk_id,notnull"`
	Source        string `bun:"source"`
	Content       string `bun:"content,notnull"`
	Embedding     string `bun:"embedding,notnull"`
}

type searchRow struct {
	ChunkID int     `bun:"chunk_id"`
	Source  string  `bun:"source"`
	Content string  `bun:"content"`
	Score   float64 `bun:"score"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with pgdriver, or lib/pq when driver is "postgres"
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == config.DriverPQ {
		return sql.Open("postgres", cfg.URL)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// PGVectorStore keeps one index in its own pgvector table. The table lives
// only as long as the index; Drop removes it.
type PGVectorStore struct {
	db    *bun.DB
	table string
	count int
}

// NewPGVectorStore creates the table for an index of the given dimension
func NewPGVectorStore(ctx context.Context, db *bun.DB, name string, dimension int) (*PGVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}
	s := &PGVectorStore{db: db, table: TableName(name)}
	if err := s.init(ctx, dimension); err != nil {
		return nil, err
	}
	return s, nil
}

// TableName turns an index id into a safe table name
func TableName(name string) string {
	var b strings.Builder
	b.WriteString("chunks_")
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *PGVectorStore) init(ctx context.Context, dimension int) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %v", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
	id bigserial PRIMARY KEY,
	chunk_id integer NOT NULL,
	source text,
	content text NOT NULL,
	embedding vector(?) NOT NULL
)`, bun.Ident(s.table), dimension)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %v", s.table, err)
	}
	log.Debug().Str("table", s.table).Int("dimension", dimension).Msg("Created index table")
	return nil
}

func (s *PGVectorStore) AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			ChunkID:   c.ChunkID,
			Source:    c.Source,
			Content:   c.Content,
			Embedding: ToLiteral(c.Embedding),
		}
	}
	if _, err := s.db.NewInsert().Model(&docs).ModelTableExpr("?", bun.Ident(s.table)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store documents: %v", err)
	}
	s.count += len(docs)
	return nil
}

// Search orders by cosine distance; score is cosine similarity
func (s *PGVectorStore) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	if k > s.count {
		k = s.count
	}
	if k <= 0 {
		return nil, nil
	}
	vec := ToLiteral(query)

	var rows []searchRow
	err := s.db.NewRaw(`SELECT chunk_id, source, content, 1 - (embedding <=> ?::vector) AS score
FROM ?
ORDER BY embedding <=> ?::vector, chunk_id
LIMIT ?`, vec, bun.Ident(s.table), vec, k).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %v", err)
	}

	out := make([]models.ScoredChunk, len(rows))
	for i, r := range rows {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{Content: r.Content, Source: r.Source, ChunkID: r.ChunkID},
			Score: float32(r.Score),
		}
	}
	return out, nil
}

func (s *PGVectorStore) Count() int {
	return s.count
}

// drop table for this index
func (s *PGVectorStore) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %v", s.table, err)
	}
	s.count = 0
	return nil
}

// ToLiteral formats a vector in pgvector's text form
func ToLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
