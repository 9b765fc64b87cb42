package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/chat"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/config"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/db"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/embedding"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/fetcher"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/helper"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/llmservice"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/parser"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/rag"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/search"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/tui"
)

const configFilePath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	url := flag.String("url", "", "Anime page URL to process")
	query := flag.String("query", "", "Question to ask about the page")
	dryRun := flag.Bool("dry-run", false, "Fetch and split the page, print the chunks and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	interactive := *query == "" && !*dryRun
	closeLog := setupLogger(&cfg.Log, interactive)
	defer closeLog()

	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")
	ctx := context.Background()

	switch {
	case *dryRun:
		if *url == "" {
			log.Fatal().Msg("Please provide a page using the -url flag")
		}
		dryRunURL(ctx, cfg, *url)
	case *query != "":
		if *url == "" {
			log.Fatal().Msg("Please provide a page using the -url flag together with -query")
		}
		askOnce(ctx, cfg, *url, *query)
	default:
		runTUI(ctx, cfg, *url)
	}
}

// setupLogger writes to stdout, or to the log file while the TUI owns the screen
func setupLogger(cfg *config.LogConfig, toFile bool) func() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	closer := func() {}
	if toFile {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = io.Discard
		} else {
			out = f
			closer = func() { f.Close() }
		}
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: toFile}).With().Caller().Logger()
	return closer
}

func newPipeline(cfg *config.Config) (*rag.Pipeline, func()) {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	stores, cleanup := newStoreFactory(cfg)
	p := rag.NewPipeline(
		fetcher.New(&cfg.Fetch),
		parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedder,
		rag.Options{Dimension: cfg.EmbedLLM.Dimension, NewStore: stores},
	)
	return p, cleanup
}

func newStoreFactory(cfg *config.Config) (rag.StoreFactory, func()) {
	if cfg.RAG.IndexBackend != config.BackendPGVector {
		return rag.ChromemStores, func() {}
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	stores := func(ctx context.Context, name string, dimension int) (rag.VectorStore, error) {
		return db.NewPGVectorStore(ctx, dbInstance, name, dimension)
	}
	return stores, func() { dbInstance.Close() }
}

func newSession(ctx context.Context, cfg *config.Config) (*chat.Session, func()) {
	pipeline, cleanup := newPipeline(cfg)
	searcher := search.NewService(search.NewDuckDuckGo(&cfg.Search), cfg.Search.NumResults)
	session := chat.NewSession(chat.FromPipeline(pipeline), searcher, llmservice.New(&cfg.LLM), chat.Options{
		TopK:            cfg.RAG.TopK,
		NumResults:      cfg.Search.NumResults,
		MaxHistoryTurns: cfg.RAG.MaxHistoryTurns,
	})
	return session, func() {
		if err := session.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Error closing session")
		}
		cleanup()
	}
}

func dryRunURL(ctx context.Context, cfg *config.Config, url string) {
	pipeline, cleanup := newPipeline(cfg)
	defer cleanup()

	chunks, err := pipeline.Load(ctx, url)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading page")
	}
	log.Info().Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(os.Stdout, chunks)
}

func askOnce(ctx context.Context, cfg *config.Config, url, query string) {
	session, cleanup := newSession(ctx, cfg)
	defer cleanup()

	if err := session.ProcessURL(ctx, url); err != nil {
		log.Fatal().Err(err).Msg("Failed to process URL")
	}

	turn, err := session.Ask(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error querying")
	}
	response := models.PromptResponse{Query: query, Source: session.ProcessedURL(), Content: turn.Content}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
}

func runTUI(ctx context.Context, cfg *config.Config, url string) {
	session, cleanup := newSession(ctx, cfg)
	defer cleanup()

	if _, err := tea.NewProgram(tui.New(ctx, session, url), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
	}
}
