// Package social implements the search_x tool: recent-post search on X
// through the official API, with a site-restricted web search fallback for
// unauthenticated or failing setups.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/internal/tools/websearch"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	maxPosts      = 10
	searchTimeout = 10 * time.Second
)

// xAPIURL is the X API v2 base. Overridable in tests.
var xAPIURL = "https://api.twitter.com/2"

// Tool implements search_x.
type Tool struct {
	bearerToken string
	httpClient  *http.Client
	apiBase     string
	fallback    *websearch.Tool
}

// Option configures the tool.
type Option func(*Tool)

// WithAPIBase points the tool at an alternate endpoint. Tests only.
func WithAPIBase(base string) Option {
	return func(t *Tool) { t.apiBase = base }
}

// New creates the tool. bearerToken may be empty, in which case every
// query goes straight to the web search fallback. fallback must not be nil.
func New(bearerToken string, fallback *websearch.Tool, opts ...Option) *Tool {
	t := &Tool{
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: searchTimeout},
		apiBase:     xAPIURL,
		fallback:    fallback,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "search_x"
}

func (t *Tool) Description() string {
	return "Search recent posts on X (Twitter). Supports X search operators like from:user and #hashtag."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query, using X search operators where useful"
			}
		},
		"required": ["query"]
	}`)
}

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

	agent.PublishStatus(ctx, fmt.Sprintf("searching X for %q...", p.Query))

	if t.bearerToken != "" {
		content, err := t.searchAPI(ctx, p.Query)
		if err == nil {
			return &models.ToolResult{Content: content}, nil
		}
		// API failure falls through to the web fallback.
	}

	return t.searchFallback(ctx, p.Query)
}

// searchAPI queries the recent-search endpoint.
func (t *Tool) searchAPI(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", fmt.Sprintf("%d", maxPosts))
	q.Set("tweet.fields", "created_at,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username")

	reqURL := fmt.Sprintf("%s/tweets/search/recent?%s", t.apiBase, q.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("X API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp struct {
		Data []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			AuthorID  string `json:"author_id"`
			CreatedAt string `json:"created_at"`
		} `json:"data"`
		Includes struct {
			Users []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		} `json:"includes"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return "No posts found.", nil
	}

	usernames := make(map[string]string, len(apiResp.Includes.Users))
	for _, u := range apiResp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	var b strings.Builder
	for i, post := range apiResp.Data {
		author := usernames[post.AuthorID]
		if author == "" {
			author = post.AuthorID
		}
		fmt.Fprintf(&b, "%d. @%s (%s)\n%s\nhttps://x.com/%s/status/%s\n\n",
			i+1, author, post.CreatedAt, post.Text, author, post.ID)
	}
	return strings.TrimSpace(b.String()), nil
}

// searchFallback runs a site-restricted web search. Weaker than the API
// (no timestamps, indexed posts only) but works without credentials.
func (t *Tool) searchFallback(ctx context.Context, query string) (*models.ToolResult, error) {
	results, err := t.fallback.Search(ctx, "site:x.com "+query, maxPosts)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Search failed: %v", err),
			IsError: true,
		}, nil
	}
	if len(results) == 0 {
		return &models.ToolResult{Content: "No posts found."}, nil
	}
	return &models.ToolResult{Content: websearch.FormatResults(results)}, nil
}
