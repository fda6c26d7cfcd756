package webpage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reun10n/kuro/internal/tools/websearch"
)

func TestSlice(t *testing.T) {
	long := strings.Repeat("a", 100)

	tests := []struct {
		name   string
		text   string
		start  int
		budget int
		want   string
	}{
		{
			name:   "fits in one slice",
			text:   "short page",
			start:  0,
			budget: 100,
			want:   "short page",
		},
		{
			name:   "exactly budget",
			text:   long,
			start:  0,
			budget: 100,
			want:   long,
		},
		{
			name:   "truncated with marker",
			text:   long,
			start:  0,
			budget: 40,
			want:   long[:40] + "\n\n[truncated — call again with start=40 to continue]",
		},
		{
			name:   "continuation slice",
			text:   long,
			start:  40,
			budget: 100,
			want:   long[40:],
		},
		{
			name:   "offset past end",
			text:   "tiny",
			start:  500,
			budget: 100,
			want:   "(no content at offset 500; page is 4 bytes)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slice(tt.text, tt.start, tt.budget); got != tt.want {
				t.Errorf("Slice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecuteLargePagePaginates(t *testing.T) {
	body := "<html><head><title>big</title></head><body><article>" +
		strings.Repeat("lorem ipsum dolor sit amet ", 3000) +
		"</article></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	tool := New(WithExtractor(websearch.NewContentExtractorForTesting()))

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("Execute() error result: %s", res.Content)
	}
	if !strings.Contains(res.Content, "[truncated") {
		t.Fatal("large page should carry a continuation marker")
	}
	if len(res.Content) > pageBudget+100 {
		t.Errorf("slice is %d bytes, want about %d plus the marker", len(res.Content), pageBudget)
	}

	// Follow the marker to the next slice.
	var start int
	if _, err := fmt.Sscanf(res.Content[strings.Index(res.Content, "start="):], "start=%d", &start); err != nil {
		t.Fatalf("cannot parse continuation offset from %q", res.Content[len(res.Content)-80:])
	}
	if start != pageBudget {
		t.Errorf("continuation offset = %d, want %d", start, pageBudget)
	}

	next, err := tool.Execute(context.Background(), json.RawMessage(fmt.Sprintf(`{"url":%q,"start":%d}`, srv.URL, start)))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if next.IsError || next.Content == res.Content {
		t.Error("continuation slice should differ from the first")
	}
}

func TestExecuteFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := New(WithExtractor(websearch.NewContentExtractorForTesting()))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() must not return a Go error, got %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "Fetch failed") {
		t.Errorf("result = %+v, want fetch failure", res)
	}
}

func TestExecuteMissingURL(t *testing.T) {
	tool := New()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("missing url should be an error result")
	}
}

func TestGitHubRepoDetection(t *testing.T) {
	tool := New()
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"https://github.com/torvalds/linux", "torvalds", "linux", true},
		{"https://github.com/torvalds/linux/", "torvalds", "linux", true},
		{"https://www.github.com/owner/repo", "owner", "repo", true},
		{"https://github.com/torvalds/linux/blob/master/README", "", "", false},
		{"https://github.com/torvalds", "", "", false},
		{"https://gitlab.com/owner/repo", "", "", false},
		{"https://example.com/owner/repo", "", "", false},
	}

	for _, tt := range tests {
		owner, repo, ok := tool.githubRepo(tt.url)
		if ok != tt.wantOK || owner != tt.wantOwner || repo != tt.wantRepo {
			t.Errorf("githubRepo(%q) = %q, %q, %v; want %q, %q, %v",
				tt.url, owner, repo, ok, tt.wantOwner, tt.wantRepo, tt.wantOK)
		}
	}
}

func TestExecuteGitHubReadme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/reun10n/kuro/readme" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if accept := r.Header.Get("Accept"); accept != "application/vnd.github.raw+json" {
			t.Errorf("Accept = %q", accept)
		}
		fmt.Fprint(w, "# Kuro\n\nCTF team agent.")
	}))
	defer srv.Close()

	tool := New(WithGitHubAPI(srv.URL))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://github.com/reun10n/kuro"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("error result: %s", res.Content)
	}
	if !strings.Contains(res.Content, "README of reun10n/kuro") {
		t.Errorf("Content = %q", res.Content)
	}
	if !strings.Contains(res.Content, "# Kuro") {
		t.Errorf("Content missing README body: %q", res.Content)
	}
}

func TestExecuteGitHubNoReadme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := New(WithGitHubAPI(srv.URL))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://github.com/ghost/empty"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "has no README") {
		t.Errorf("result = %+v", res)
	}
}
