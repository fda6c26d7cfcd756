// Package webpage implements the fetch_page tool: paginated readable-text
// fetches of web pages, with a structured shortcut for GitHub repositories.
package webpage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/internal/tools/websearch"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	// pageBudget is the maximum extracted text returned per call. Large
	// pages come back in slices; the model asks for the next slice by
	// passing the continuation offset.
	pageBudget = 7500

	fetchTimeout = 15 * time.Second
)

// githubAPIURL is the GitHub API base. Overridable in tests.
var githubAPIURL = "https://api.github.com"

// githubRepoRegex matches bare repository URLs like github.com/owner/repo.
var githubRepoRegex = regexp.MustCompile(`^/([^/]+)/([^/]+)/?$`)

// Tool implements fetch_page.
type Tool struct {
	extractor  *websearch.ContentExtractor
	httpClient *http.Client
	githubAPI  string
}

// Option configures the fetch tool.
type Option func(*Tool)

// WithExtractor substitutes the content extractor. Tests use this to allow
// localhost URLs.
func WithExtractor(e *websearch.ContentExtractor) Option {
	return func(t *Tool) { t.extractor = e }
}

// WithGitHubAPI points the GitHub shortcut at an alternate endpoint.
// Tests only.
func WithGitHubAPI(base string) Option {
	return func(t *Tool) { t.githubAPI = base }
}

func New(opts ...Option) *Tool {
	t := &Tool{
		extractor:  websearch.NewContentExtractor(),
		httpClient: &http.Client{Timeout: fetchTimeout},
		githubAPI:  githubAPIURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "fetch_page"
}

func (t *Tool) Description() string {
	return "Fetch a web page and return its readable text. Long pages are returned in slices; " +
		"pass the start offset from the truncation marker to continue reading. " +
		"GitHub repository URLs return the repository README."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The page URL to fetch"
			},
			"start": {
				"type": "integer",
				"description": "Byte offset to continue from, for pages longer than one slice (default 0)"
			}
		},
		"required": ["url"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		URL   string `json:"url"`
		Start int    `json:"start"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(p.URL) == "" {
		return &models.ToolResult{
			Content: "URL parameter is required",
			IsError: true,
		}, nil
	}
	if p.Start < 0 {
		p.Start = 0
	}

	agent.PublishStatus(ctx, fmt.Sprintf("reading %s...", p.URL))

	var text string
	var err error
	if owner, repo, ok := t.githubRepo(p.URL); ok {
		text, err = t.fetchGitHubReadme(ctx, owner, repo)
	} else {
		text, err = t.extractor.Extract(ctx, p.URL)
	}
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Fetch failed: %v", err),
			IsError: true,
		}, nil
	}

	return &models.ToolResult{Content: Slice(text, p.Start, pageBudget)}, nil
}

// Slice returns text[start:start+budget] with a continuation marker when
// more remains. Out-of-range offsets yield a note instead of an error.
func Slice(text string, start, budget int) string {
	if start >= len(text) {
		return fmt.Sprintf("(no content at offset %d; page is %d bytes)", start, len(text))
	}
	end := start + budget
	if end >= len(text) {
		return text[start:]
	}
	return text[start:end] + fmt.Sprintf("\n\n[truncated — call again with start=%d to continue]", end)
}

// githubRepo reports whether the URL is a bare GitHub repository page.
func (t *Tool) githubRepo(rawURL string) (owner, repo string, ok bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}
	matches := githubRepoRegex.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return "", "", false
	}
	return matches[1], matches[2], true
}

// fetchGitHubReadme pulls the repository README through the API in raw
// form. Scraping the repo HTML page yields mostly navigation chrome; the
// README is what the model actually wants.
func (t *Tool) fetchGitHubReadme(ctx context.Context, owner, repo string) (string, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/readme", t.githubAPI, owner, repo)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	req.Header.Set("User-Agent", "KuroBot/1.0")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("repository %s/%s has no README", owner, repo)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return fmt.Sprintf("README of %s/%s:\n\n%s", owner, repo, string(body)), nil
}
