package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/config"
)

// DuckDuckGo scrapes the no-javascript HTML results page.
type DuckDuckGo struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

func NewDuckDuckGo(cfg *config.SearchConfig) *DuckDuckGo {
	return &DuckDuckGo{
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	// 202 is what the endpoint answers when it is rate limiting
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return parseResults(doc, limit), nil
}

func parseResults(doc *goquery.Document, limit int) []Result {
	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		r := Result{
			Title: strings.TrimSpace(link.Text()),
			Body:  strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			URL:   resultURL(link.AttrOr("href", "")),
		}
		if r.Title == "" && r.Body == "" {
			return true
		}
		results = append(results, r)
		return limit <= 0 || len(results) < limit
	})
	return results
}

// links are wrapped as //duckduckgo.com/l/?uddg=<target>
func resultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
