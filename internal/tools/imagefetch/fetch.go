// Package imagefetch implements the fetch_image tool: bounded downloads of
// model-chosen images, delivered to the chat layer as binary attachments.
package imagefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/internal/tools/websearch"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	// maxImageBytes caps the downloaded payload. Discord rejects larger
	// attachments anyway.
	maxImageBytes = 8 * 1024 * 1024

	fetchTimeout = 15 * time.Second
)

// Tool implements fetch_image.
type Tool struct {
	httpClient    *http.Client
	skipSSRFCheck bool
}

// Option configures the tool.
type Option func(*Tool)

// AllowPrivateHosts disables SSRF validation. Tests only.
func AllowPrivateHosts() Option {
	return func(t *Tool) { t.skipSSRFCheck = true }
}

func New(opts ...Option) *Tool {
	t := &Tool{httpClient: &http.Client{Timeout: fetchTimeout}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "fetch_image"
}

func (t *Tool) Description() string {
	return "Download an image from a URL and attach it to the conversation."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The image URL"
			}
		},
		"required": ["url"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		URL string `json:"url"`
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

	if !t.skipSSRFCheck {
		if err := websearch.ValidateURL(p.URL); err != nil {
			return &models.ToolResult{
				Content: fmt.Sprintf("Fetch failed: %v", err),
				IsError: true,
			}, nil
		}
	}

	agent.PublishStatus(ctx, "fetching image...")

	req, err := http.NewRequestWithContext(ctx, "GET", p.URL, nil)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Fetch failed: %v", err),
			IsError: true,
		}, nil
	}
	req.Header.Set("User-Agent", "KuroBot/1.0")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Fetch failed: %v", err),
			IsError: true,
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.ToolResult{
			Content: fmt.Sprintf("Fetch failed: HTTP %d", resp.StatusCode),
			IsError: true,
		}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return &models.ToolResult{
			Content: fmt.Sprintf("Not an image: content type %s", contentType),
			IsError: true,
		}, nil
	}

	// Read one byte past the cap to distinguish "exactly at the limit"
	// from "too big".
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("Fetch failed: %v", err),
			IsError: true,
		}, nil
	}
	if len(data) > maxImageBytes {
		return &models.ToolResult{
			Content: fmt.Sprintf("Image too large: exceeds %d bytes", maxImageBytes),
			IsError: true,
		}, nil
	}

	filename := filenameFor(p.URL, contentType)
	return &models.ToolResult{
		Content:  fmt.Sprintf("attached image %s (%d bytes)", filename, len(data)),
		Data:     data,
		Filename: filename,
	}, nil
}

func filenameFor(rawURL, contentType string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "/" && name != "." && strings.Contains(name, ".") {
			return name
		}
	}
	ext := ".img"
	switch {
	case strings.Contains(contentType, "png"):
		ext = ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		ext = ".jpg"
	case strings.Contains(contentType, "gif"):
		ext = ".gif"
	case strings.Contains(contentType, "webp"):
		ext = ".webp"
	}
	return "image" + ext
}
