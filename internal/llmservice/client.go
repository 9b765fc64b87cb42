package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/config"
)

var (
	ErrCompletion        = errors.New("completion failed")
	ErrMissingCredential = errors.New("missing API key")
)

// Client completes prompts against the configured chat model. The model is
// created on first use, so a missing key only surfaces when a question is asked.
type Client struct {
	cfg      config.LLMConfig
	newModel func(cfg *config.LLMConfig) (llms.Model, error)

	mu    sync.Mutex
	model llms.Model
}

func New(cfg *config.LLMConfig) *Client {
	return &Client{cfg: *cfg, newModel: NewModel}
}

// NewWithModel wraps an existing model; temperature is taken from cfg.
func NewWithModel(cfg *config.LLMConfig, model llms.Model) *Client {
	return &Client{cfg: *cfg, model: model}
}

// NewModel creates the langchaingo model for cfg.Provider
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating llm client")

	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case config.ProviderOpenAI:
		key := cfg.APIKey()
		if key == "" {
			env := cfg.KeyEnv
			if env == "" {
				env = "llm.key"
			}
			return nil, fmt.Errorf("%w: set %s", ErrMissingCredential, env)
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (c *Client) getModel() (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		return c.model, nil
	}
	m, err := c.newModel(&c.cfg)
	if err != nil {
		return nil, err
	}
	c.model = m
	return m, nil
}

// Complete sends prompt as a single user message and returns the trimmed answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	model, err := c.getModel()
	if err != nil {
		log.Error().Err(err).Str("error_type", string(ClassifyError(err))).Msg("LLM unavailable")
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	start := time.Now()
	messages := []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}
	resp, err := GenerateContent(ctx, model, messages, llms.WithTemperature(c.cfg.Temperature))
	if err != nil {
		log.Error().Err(err).Str("error_type", string(ClassifyError(err))).Msg("LLM call failed")
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrCompletion)
	}

	log.Debug().Str("model", c.cfg.Model).Dur("took", time.Since(start)).Msg("LLM call done")
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// call llm
func GenerateContent(ctx context.Context, model llms.Model, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	log.Debug().Int("messages", len(messages)).Msg("Generating content")
	return model.GenerateContent(ctx, messages, opts...)
}
