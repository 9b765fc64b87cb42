package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// FailedSearchMessage replaces the results when the provider fails.
const FailedSearchMessage = "DuckDuckGo search failed."

const DefaultNumResults = 3

// Result is one search hit. Any field may be empty.
type Result struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"href"`
}

type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Service turns provider results into a block of prompt context.
type Service struct {
	provider   Provider
	numResults int
}

func NewService(provider Provider, numResults int) *Service {
	if numResults <= 0 {
		numResults = DefaultNumResults
	}
	return &Service{provider: provider, numResults: numResults}
}

// WebSearch returns one snippet per result joined by newlines. It never
// fails: provider errors are logged and FailedSearchMessage is returned.
func (s *Service) WebSearch(ctx context.Context, query string, numResults int) string {
	if numResults <= 0 {
		numResults = s.numResults
	}

	results, err := s.provider.Search(ctx, query, numResults)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Web search failed")
		return FailedSearchMessage
	}
	if len(results) > numResults {
		results = results[:numResults]
	}

	snippets := make([]string, len(results))
	for i, r := range results {
		snippets[i] = Snippet(r)
	}
	log.Debug().Str("query", query).Int("results", len(results)).Msg("Web search done")
	return strings.Join(snippets, "\n")
}

// Snippet is the body, else the title, else empty.
func Snippet(r Result) string {
	if r.Body != "" {
		return r.Body
	}
	return r.Title
}
