package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/config"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/parser"
)

var ErrTooLarge = errors.New("document too large")

// Fetcher downloads a page and extracts its visible text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func New(cfg *config.FetchConfig) *Fetcher {
	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
	}
}

// Fetch returns the document at rawURL. The content may be empty when the
// page has no visible text; callers decide what that means.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.Document{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Document{}, fmt.Errorf("invalid url %q: need an absolute http(s) url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Document{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return models.Document{}, fmt.Errorf("request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return models.Document{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	finalURL := resp.Request.URL.String()
	contentType := resp.Header.Get("Content-Type")
	text, err := parser.ExtractText(body, contentType, finalURL)
	if err != nil {
		return models.Document{}, err
	}

	log.Debug().
		Str("url", rawURL).
		Str("final_url", finalURL).
		Str("content_type", contentType).
		Int("bytes", len(body)).
		Int("chars", len([]rune(text))).
		Msg("Fetched document")

	return models.Document{
		SourceURL:   rawURL,
		FinalURL:    finalURL,
		ContentType: contentType,
		Content:     text,
	}, nil
}
