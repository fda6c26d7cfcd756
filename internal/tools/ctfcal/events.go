// Package ctfcal implements the upcoming_ctfs tool, a read-only view of the
// CTFtime event calendar.
package ctfcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	defaultLimit  = 10
	lookaheadDays = 30
	fetchTimeout  = 10 * time.Second
)

// ctftimeAPIURL is the CTFtime events endpoint. Overridable in tests.
var ctftimeAPIURL = "https://ctftime.org/api/v1/events/"

// Event is one CTFtime calendar entry.
type Event struct {
	Title  string  `json:"title"`
	Start  string  `json:"start"`
	Finish string  `json:"finish"`
	Format string  `json:"format"`
	URL    string  `json:"url"`
	Weight float64 `json:"weight"`
	Onsite bool    `json:"onsite"`
}

// Tool implements upcoming_ctfs. It only ever reads the calendar.
type Tool struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// Option configures the tool.
type Option func(*Tool)

// WithBaseURL points the tool at an alternate endpoint. Tests only.
func WithBaseURL(u string) Option {
	return func(t *Tool) { t.baseURL = u }
}

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) { t.now = now }
}

func New(opts ...Option) *Tool {
	t := &Tool{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    ctftimeAPIURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "upcoming_ctfs"
}

func (t *Tool) Description() string {
	return "List CTF competitions starting in the next month, from the CTFtime calendar."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	agent.PublishStatus(ctx, "checking the CTFtime calendar...")

	now := t.now()
	reqURL := fmt.Sprintf("%s?limit=%d&start=%d&finish=%d",
		t.baseURL, defaultLimit, now.Unix(), now.AddDate(0, 0, lookaheadDays).Unix())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("CTFtime lookup failed: %v", err),
			IsError: true,
		}, nil
	}
	// CTFtime rejects default Go user agents.
	req.Header.Set("User-Agent", "KuroBot/1.0 (CTF team calendar)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("CTFtime lookup failed: %v", err),
			IsError: true,
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.ToolResult{
			Content: fmt.Sprintf("CTFtime lookup failed: HTTP %d", resp.StatusCode),
			IsError: true,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("CTFtime lookup failed: %v", err),
			IsError: true,
		}, nil
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return &models.ToolResult{
			Content: fmt.Sprintf("CTFtime lookup failed: %v", err),
			IsError: true,
		}, nil
	}
	if len(events) == 0 {
		return &models.ToolResult{Content: "No upcoming CTFs in the next month."}, nil
	}

	return &models.ToolResult{Content: FormatEvents(events)}, nil
}

// FormatEvents renders events as a readable list.
func FormatEvents(events []Event) string {
	var b strings.Builder
	for i, e := range events {
		location := "online"
		if e.Onsite {
			location = "onsite"
		}
		fmt.Fprintf(&b, "%d. %s (%s, %s, weight %.1f)\n%s to %s\n%s\n\n",
			i+1, e.Title, e.Format, location, e.Weight,
			formatTime(e.Start), formatTime(e.Finish), e.URL)
	}
	return strings.TrimSpace(b.String())
}

func formatTime(ts string) string {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return parsed.UTC().Format("Mon Jan 2 15:04 UTC")
}
