// Package websearch implements the web_search tool and the shared page
// content extractor.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	defaultResultCount = 5
	maxResultCount     = 10
	searchTimeout      = 10 * time.Second
	cacheTTL           = 5 * time.Minute

	// maxCacheSize bounds the response cache.
	maxCacheSize = 1000
)

// ddgAPIURL is the DuckDuckGo Instant Answer endpoint. Overridable in tests.
var ddgAPIURL = "https://api.duckduckgo.com/"

// SearchResult is a single search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type cacheEntry struct {
	content   string
	expiresAt time.Time
}

// Tool implements web_search over the DuckDuckGo Instant Answer API, with
// a small TTL cache keyed by query.
type Tool struct {
	httpClient *http.Client
	baseURL    string

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry
}

// Option configures the search tool.
type Option func(*Tool)

// WithBaseURL points the tool at an alternate endpoint. Tests only.
func WithBaseURL(u string) Option {
	return func(t *Tool) { t.baseURL = u }
}

func New(opts ...Option) *Tool {
	t := &Tool{
		httpClient: &http.Client{Timeout: searchTimeout},
		baseURL:    ddgAPIURL,
		cache:      make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "web_search"
}

func (t *Tool) Description() string {
	return "Search the web. Returns the top results with title, URL, and snippet."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query"
			}
		},
		"required": ["query"]
	}`)
}

// Execute runs the search. Failures come back as error results, never as
// Go errors, so the model can see what went wrong.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(p.Query) == "" {
		return &models.ToolResult{
			Content: "Query parameter is required",
			IsError: true,
		}, nil
	}

	agent.PublishStatus(ctx, fmt.Sprintf("searching the web for %q...", p.Query))

	if cached := t.getFromCache(p.Query); cached != "" {
		return &models.ToolResult{Content: cached}, nil
	}

	results, err := t.Search(ctx, p.Query, defaultResultCount)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Search failed: %v", err),
			IsError: true,
		}, nil
	}
	if len(results) == 0 {
		return &models.ToolResult{Content: "No results found."}, nil
	}

	content := FormatResults(results)
	t.putInCache(p.Query, content)
	return &models.ToolResult{Content: content}, nil
}

// Search queries DuckDuckGo and returns up to count results.
func (t *Tool) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if count <= 0 {
		count = defaultResultCount
	}
	if count > maxResultCount {
		count = maxResultCount
	}

	reqURL := fmt.Sprintf("%s?q=%s&format=json&no_html=1", t.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var results []SearchResult
	if ddgResp.AbstractText != "" && ddgResp.AbstractURL != "" {
		results = append(results, SearchResult{
			Title:   ddgResp.Heading,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for _, topic := range ddgResp.RelatedTopics {
		if len(results) >= count {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}

	return results, nil
}

// FormatResults renders results as numbered text for the model.
func FormatResults(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimSpace(b.String())
}

func (t *Tool) getFromCache(query string) string {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[query]
	if !ok || time.Now().After(entry.expiresAt) {
		return ""
	}
	return entry.content
}

func (t *Tool) putInCache(query, content string) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(t.cache, oldestKey)
	}

	t.cache[query] = &cacheEntry{content: content, expiresAt: now.Add(cacheTTL)}
}
