package websearch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const userAgent = "Mozilla/5.0 (compatible; KuroBot/1.0)"

// maxFetchBytes caps how much of a page body is read.
const maxFetchBytes = 10 * 1024 * 1024

// ContentExtractor fetches web pages and reduces them to readable text.
// Shared by the search tool (snippet expansion) and the page fetch tool.
type ContentExtractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool // tests only, allows localhost URLs
}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewContentExtractorForTesting returns an extractor that allows localhost
// URLs. Tests only.
func NewContentExtractorForTesting() *ContentExtractor {
	return &ContentExtractor{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		skipSSRFCheck: true,
	}
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	// Cloud metadata endpoint.
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

// ValidateURL rejects URLs that could reach internal infrastructure. The
// bot fetches model-chosen URLs, so everything non-public is refused.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Unresolvable here may still resolve through a proxy; let the
		// fetch itself fail if it fails.
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

// Extract fetches targetURL and returns its readable text content.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if !e.skipSSRFCheck {
		if err := ValidateURL(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if strings.Contains(contentType, "text/plain") {
		return cleanText(string(body)), nil
	}
	return extractReadableContent(string(body)), nil
}

// extractReadableContent implements a simplified readability pass: strip
// chrome tags, pull out title and description, then flatten the main
// content container to text.
func extractReadableContent(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"} {
		html = removeTag(html, tag)
	}

	title := extractTitle(html)
	description := extractMetaDescription(html)

	content := extractMainContent(html)
	if content == "" {
		content = extractFromBody(html)
	}
	content = cleanText(content)

	var result strings.Builder
	if title != "" {
		result.WriteString("Title: ")
		result.WriteString(title)
		result.WriteString("\n\n")
	}
	if description != "" {
		result.WriteString("Description: ")
		result.WriteString(description)
		result.WriteString("\n\n")
	}
	result.WriteString(content)
	return result.String()
}

func removeTag(html, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

func extractTitle(html string) string {
	re := regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return cleanText(matches[1])
	}

	re = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return cleanText(matches[1])
	}

	re = regexp.MustCompile(`(?i)<h1[^>]*>(.*?)</h1>`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return cleanText(matches[1])
	}
	return ""
}

func extractMetaDescription(html string) string {
	re := regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return cleanText(matches[1])
	}

	re = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return cleanText(matches[1])
	}
	return ""
}

func extractMainContent(html string) string {
	patterns := []string{
		`(?is)<main[^>]*>(.*?)</main>`,
		`(?is)<article[^>]*>(.*?)</article>`,
		`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']main["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`,
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		if matches := re.FindStringSubmatch(html); len(matches) > 1 {
			text := extractText(matches[1])
			if len(strings.TrimSpace(text)) > 200 {
				return text
			}
		}
	}
	return ""
}

func extractFromBody(html string) string {
	re := regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	if matches := re.FindStringSubmatch(html); len(matches) > 1 {
		return extractText(matches[1])
	}
	return ""
}

// extractText flattens HTML to plain text, preserving paragraph structure.
func extractText(html string) string {
	for _, tag := range []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"} {
		re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>`)
		html = re.ReplaceAllString(html, "\n")
		re = regexp.MustCompile(`(?i)</` + tag + `>`)
		html = re.ReplaceAllString(html, "\n")
	}

	re := regexp.MustCompile(`<[^>]*>`)
	return re.ReplaceAllString(html, "")
}

var (
	intraLineSpaceRegex = regexp.MustCompile(`[^\S\n]+`)
	multiNewlineRegex   = regexp.MustCompile(`\n{3,}`)
)

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&apos;", "'")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(intraLineSpaceRegex.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = multiNewlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
