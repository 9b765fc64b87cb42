package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash" // offline embedder, no model server

	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "postgres"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM EmbedConfig    `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Search   SearchConfig   `yaml:"search"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig describes the chat completion model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// EmbedConfig describes the embedding model. Dimension is checked against every
// vector an index is built from; 0 skips the check.
type EmbedConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	TopK            int    `yaml:"top_k"`
	IndexBackend    string `yaml:"index_backend"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
}

type SearchConfig struct {
	BaseURL     string `yaml:"base_url"`
	NumResults  int    `yaml:"num_results"`
	UserAgent   string `yaml:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type FetchConfig struct {
	UserAgent    string `yaml:"user_agent"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	MaxBytes     int64  `yaml:"max_bytes"`
	MaxRedirects int    `yaml:"max_redirects"`
}

// DatabaseConfig is only used by the pgvector index backend.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; AnimeKIQ/1.0)"
	logLevelEnv      = "ANIMEKIQ_LOG_LEVEL"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.groq.com/openai/v1",
			KeyEnv:      "GROQ_API_KEY",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.8,
		},
		EmbedLLM: EmbedConfig{
			Provider:  ProviderOllama,
			BaseURL:   "http://localhost:11434",
			Model:     "all-minilm",
			Dimension: 384,
			BatchSize: 64,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
			IndexBackend: BackendChromem,
		},
		Search: SearchConfig{
			BaseURL:     "https://html.duckduckgo.com/html/",
			NumResults:  3,
			UserAgent:   defaultUserAgent,
			TimeoutSecs: 15,
		},
		Fetch: FetchConfig{
			UserAgent:    defaultUserAgent,
			TimeoutSecs:  30,
			MaxBytes:     10 << 20,
			MaxRedirects: 10,
		},
		Database: DatabaseConfig{
			Driver: DriverPGDriver,
		},
		Log: LogConfig{
			Level: "info",
			File:  "animekiq.log",
		},
	}
}

// LoadConfig reads the YAML file at path on top of Default and applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.MaxHistoryTurns < 0 {
		return fmt.Errorf("rag.max_history_turns must not be negative, got %d", c.RAG.MaxHistoryTurns)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be 0-2, got %f", c.LLM.Temperature)
	}
	if !validProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if !validProvider(c.EmbedLLM.Provider) && c.EmbedLLM.Provider != ProviderHash {
		return fmt.Errorf("unknown embed_llm.provider %q", c.EmbedLLM.Provider)
	}
	switch c.RAG.IndexBackend {
	case BackendChromem:
	case BackendPGVector:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s backend", BackendPGVector)
		}
		if c.Database.Driver != DriverPGDriver && c.Database.Driver != DriverPQ {
			return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown rag.index_backend %q", c.RAG.IndexBackend)
	}
	return nil
}

// APIKey returns the configured key, falling back to the key_env variable.
// It may be empty; the LLM client reports that on first use.
func (l *LLMConfig) APIKey() string {
	if k := strings.TrimSpace(l.Key); k != "" {
		return k
	}
	if l.KeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(l.KeyEnv))
}

const redacted = "[redacted]"

// Redacted returns a copy safe to log: keys and passwords are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.LLM.Key != "" {
		out.LLM.Key = redacted
	}
	if out.EmbedLLM.Key != "" {
		out.EmbedLLM.Key = redacted
	}
	if out.Database.Password != "" {
		out.Database.Password = redacted
	}
	if u, err := url.Parse(out.Database.URL); err == nil && u.Scheme != "" {
		out.Database.URL = u.Redacted()
	} else if strings.Contains(out.Database.URL, "password") {
		// key=value DSN
		out.Database.URL = redacted
	}
	return out
}

func validProvider(p string) bool {
	return p == ProviderOpenAI || p == ProviderOllama
}

// zero values from a partial YAML file fall back to defaults
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = def.EmbedLLM.Provider
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = def.EmbedLLM.Model
	}
	if cfg.EmbedLLM.BatchSize <= 0 {
		cfg.EmbedLLM.BatchSize = def.EmbedLLM.BatchSize
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = def.RAG.ChunkSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.IndexBackend == "" {
		cfg.RAG.IndexBackend = def.RAG.IndexBackend
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = def.Search.BaseURL
	}
	if cfg.Search.NumResults <= 0 {
		cfg.Search.NumResults = def.Search.NumResults
	}
	if cfg.Search.UserAgent == "" {
		cfg.Search.UserAgent = def.Search.UserAgent
	}
	if cfg.Search.TimeoutSecs <= 0 {
		cfg.Search.TimeoutSecs = def.Search.TimeoutSecs
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = def.Fetch.UserAgent
	}
	if cfg.Fetch.TimeoutSecs <= 0 {
		cfg.Fetch.TimeoutSecs = def.Fetch.TimeoutSecs
	}
	if cfg.Fetch.MaxBytes <= 0 {
		cfg.Fetch.MaxBytes = def.Fetch.MaxBytes
	}
	if cfg.Fetch.MaxRedirects <= 0 {
		cfg.Fetch.MaxRedirects = def.Fetch.MaxRedirects
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(logLevelEnv); v != "" {
		cfg.Log.Level = v
	}
}
