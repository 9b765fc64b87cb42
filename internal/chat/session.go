package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/llmservice"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/rag"
)

var (
	ErrEmptyURL      = errors.New("url is empty")
	ErrNotReady      = errors.New("no URL has been processed")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrRetrieval     = errors.New("retrieval failed")
	ErrPrompt        = errors.New("prompt rendering failed")
)

// Retriever is a built index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error)
	Close(ctx context.Context) error
}

type Indexer interface {
	Index(ctx context.Context, url string) (Retriever, error)
}

type IndexerFunc func(ctx context.Context, url string) (Retriever, error)

func (f IndexerFunc) Index(ctx context.Context, url string) (Retriever, error) { return f(ctx, url) }

// FromPipeline indexes URLs with p.
func FromPipeline(p *rag.Pipeline) Indexer {
	return IndexerFunc(func(ctx context.Context, url string) (Retriever, error) {
		idx, err := p.BuildIndex(ctx, url)
		if err != nil {
			return nil, err
		}
		return idx, nil
	})
}

type Searcher interface {
	WebSearch(ctx context.Context, query string, numResults int) string
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	TopK       int
	NumResults int
	// MaxHistoryTurns bounds the turns sent with each prompt; 0 sends all.
	MaxHistoryTurns int
	// Template overrides models.PromptTemplate.
	Template string
}

// Session is one conversation about one processed URL. Operations are
// serialized; readers see the index, URL and history change together.
type Session struct {
	indexer  Indexer
	searcher Searcher
	llm      Completer
	opts     Options
	prompt   prompts.PromptTemplate

	opMu sync.Mutex

	mu      sync.RWMutex
	index   Retriever
	url     string
	history []models.Turn
}

func NewSession(indexer Indexer, searcher Searcher, llm Completer, opts Options) *Session {
	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	if opts.Template == "" {
		opts.Template = models.PromptTemplate
	}
	return &Session{
		indexer:  indexer,
		searcher: searcher,
		llm:      llm,
		opts:     opts,
		prompt:   prompts.NewPromptTemplate(opts.Template, []string{"history", "context", "question"}),
	}
}

// ProcessURL builds an index for url and makes it current. Processing the
// current URL again does nothing. On failure the session has no index.
func (s *Session) ProcessURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrEmptyURL
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	same := s.index != nil && s.url == url
	s.mu.RUnlock()
	if same {
		log.Debug().Str("url", url).Msg("URL already processed")
		return nil
	}

	log.Info().Str("url", url).Msg("Processing URL")
	idx, err := s.indexer.Index(ctx, url)

	s.mu.Lock()
	old := s.index
	if err != nil {
		s.index, s.url = nil, ""
	} else {
		s.index, s.url, s.history = idx, url, nil
	}
	s.mu.Unlock()

	s.closeIndex(ctx, old)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Failed to process URL")
		return err
	}
	return nil
}

func (s *Session) closeIndex(ctx context.Context, idx Retriever) {
	if idx == nil {
		return
	}
	if err := idx.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Failed to drop index")
	}
}

func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

func (s *Session) ProcessedURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// History returns a copy of the conversation so far.
func (s *Session) History() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Close drops the current index and forgets the conversation.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	old := s.index
	s.index, s.url, s.history = nil, "", nil
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	return old.Close(ctx)
}

// Ask answers question from the current index and a web search. Failures
// after the question is accepted are recorded as an error turn and returned.
func (s *Session) Ask(ctx context.Context, question string) (models.Turn, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	idx := s.index
	prior := s.recentHistory()
	s.mu.RUnlock()

	if idx == nil {
		return models.Turn{}, ErrNotReady
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Turn{}, ErrEmptyQuestion
	}

	s.appendTurn(models.Turn{Role: models.RoleUser, Content: question})

	answer, err := s.answer(ctx, idx, prior, question)
	if err != nil {
		log.Error().Err(err).Str("error_type", string(llmservice.ClassifyError(err))).Msg("Failed to answer question")
		turn := models.Turn{Role: models.RoleAssistant, Content: models.ErrorPrefix + err.Error()}
		s.appendTurn(turn)
		return turn, err
	}

	turn := models.Turn{Role: models.RoleAssistant, Content: answer}
	s.appendTurn(turn)
	return turn, nil
}

func (s *Session) answer(ctx context.Context, idx Retriever, prior []models.Turn, question string) (string, error) {
	chunks, err := idx.Retrieve(ctx, question, s.opts.TopK)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	log.Debug().Int("k", s.opts.TopK).Int("chunks", len(chunks)).Msg("Retrieved context")

	web := s.searcher.WebSearch(ctx, question, s.opts.NumResults)

	prompt, err := s.RenderPrompt(prior, BuildContext(chunks, web), question)
	if err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, prompt)
}

// BuildContext joins retrieved chunk texts and web snippets into the
// labelled context block.
func BuildContext(chunks []models.Chunk, web string) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return models.RAGDataLabel + "\n" + strings.Join(texts, "\n") + "\n\n" + models.WebSearchLabel + "\n" + web
}

// RenderPrompt fills the prompt template.
func (s *Session) RenderPrompt(history []models.Turn, ragContext, question string) (string, error) {
	out, err := s.prompt.Format(map[string]any{
		"history":  FormatHistory(history),
		"context":  ragContext,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPrompt, err)
	}
	return out, nil
}

// FormatHistory renders turns as "User:" and "Assistant:" lines.
func FormatHistory(turns []models.Turn) string {
	if len(turns) == 0 {
		return models.NoHistory
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		speaker := "User"
		if t.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		lines[i] = speaker + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}

// caller holds mu
func (s *Session) recentHistory() []models.Turn {
	h := s.history
	if n := s.opts.MaxHistoryTurns; n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]models.Turn, len(h))
	copy(out, h)
	return out
}

func (s *Session) appendTurn(t models.Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}
