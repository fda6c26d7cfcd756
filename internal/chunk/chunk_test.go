package chunk

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		limit     int
		wantCount int
	}{
		{name: "empty", input: "", limit: 10, wantCount: 0},
		{name: "fits", input: "short", limit: 10, wantCount: 1},
		{name: "exact limit", input: "1234567890", limit: 10, wantCount: 1},
		{name: "splits once", input: "hello world again", limit: 12, wantCount: 2},
		{name: "no limit", input: "anything at all", limit: 0, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Text(tt.input, tt.limit)
			if len(got) != tt.wantCount {
				t.Fatalf("Text() returned %d chunks, want %d: %q", len(got), tt.wantCount, got)
			}
			for _, c := range got {
				if len(c) > tt.limit && tt.limit > 0 {
					t.Errorf("chunk exceeds limit %d: %q", tt.limit, c)
				}
			}
		})
	}
}

func TestTextPrefersNewlineBreaks(t *testing.T) {
	input := "first line\nsecond line that is fairly long\nthird"
	chunks := Text(input, 25)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0] != "first line" {
		t.Errorf("first chunk = %q, want break at newline", chunks[0])
	}
}

func TestTextHardBreakWithoutWhitespace(t *testing.T) {
	input := strings.Repeat("x", 50)
	chunks := Text(input, 20)

	var total int
	for _, c := range chunks {
		if len(c) > 20 {
			t.Errorf("chunk exceeds limit: %d bytes", len(c))
		}
		total += len(c)
	}
	if total != 50 {
		t.Errorf("chunks lost content: total %d bytes, want 50", total)
	}
}

func TestMarkdownPreservesFences(t *testing.T) {
	code := strings.Repeat("payload line\n", 30)
	input := "intro\n```python\n" + code + "```\noutro"
	chunks := Markdown(input, 200)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		opens := strings.Count(c, "```")
		if opens%2 != 0 {
			t.Errorf("chunk %d has unbalanced fences:\n%s", i, c)
		}
	}
}

func TestMarkdownShortInputUnchanged(t *testing.T) {
	input := "```\ncode\n```"
	chunks := Markdown(input, 100)
	if len(chunks) != 1 || chunks[0] != input {
		t.Errorf("Markdown() = %q, want input unchanged", chunks)
	}
}
