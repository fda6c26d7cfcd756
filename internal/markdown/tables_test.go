package markdown

import (
	"strings"
	"testing"
)

func TestFindTables(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
	}{
		{
			name:      "no tables",
			input:     "just some text\nwith multiple lines",
			wantCount: 0,
		},
		{
			name:      "simple table",
			input:     "| Name | Points |\n|------|--------|\n| web-101 | 250 |",
			wantCount: 1,
		},
		{
			name:      "missing separator row",
			input:     "| Name | Points |\n| web-101 | 250 |",
			wantCount: 0,
		},
		{
			name:      "header and separator but no data rows",
			input:     "| Name | Points |\n|------|--------|",
			wantCount: 0,
		},
		{
			name: "two tables",
			input: "| A | B |\n|---|---|\n| 1 | 2 |\n\nsome text\n\n" +
				"| C | D |\n|---|---|\n| 3 | 4 |",
			wantCount: 2,
		},
		{
			name:      "table with alignment markers",
			input:     "| Name | Points |\n|:-----|-------:|\n| pwn-200 | 500 |",
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindTables(tt.input)
			if len(got) != tt.wantCount {
				t.Errorf("FindTables() found %d tables, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestConvertTables(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "no tables here",
			want:  "no tables here",
		},
		{
			name:  "single row",
			input: "| Challenge | Points |\n|-----------|--------|\n| web-101 | 250 |",
			want:  "- **Challenge:** web-101, **Points:** 250",
		},
		{
			name:  "multiple rows",
			input: "| Name | Solved |\n|------|--------|\n| pwn-1 | yes |\n| rev-2 | no |",
			want:  "- **Name:** pwn-1, **Solved:** yes\n- **Name:** rev-2, **Solved:** no",
		},
		{
			name:  "empty cell skipped",
			input: "| Name | Flag |\n|------|------|\n| misc-3 | |",
			want:  "- **Name:** misc-3",
		},
		{
			name:  "surrounding text preserved",
			input: "scores so far:\n| Team | Rank |\n|------|------|\n| us | 4 |\nnot bad",
			want:  "scores so far:\n- **Team:** us, **Rank:** 4\nnot bad",
		},
		{
			name:  "malformed table passes through",
			input: "| looks | like |\n| a table | but no separator |",
			want:  "| looks | like |\n| a table | but no separator |",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertTables(tt.input)
			if got != tt.want {
				t.Errorf("ConvertTables() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertTablesIdempotent(t *testing.T) {
	inputs := []string{
		"| A | B |\n|---|---|\n| 1 | 2 |",
		"before\n| X | Y |\n|---|---|\n| a | b |\n| c | d |\nafter",
		"no table at all",
	}

	for _, input := range inputs {
		once := ConvertTables(input)
		twice := ConvertTables(once)
		if once != twice {
			t.Errorf("ConvertTables not idempotent:\nonce:  %q\ntwice: %q", once, twice)
		}
		if strings.Contains(once, "|---") {
			t.Errorf("ConvertTables left a separator row in output: %q", once)
		}
	}
}

func TestConvertTablesMultiple(t *testing.T) {
	input := "| A | B |\n|---|---|\n| 1 | 2 |\n\nmiddle\n\n| C | D |\n|---|---|\n| 3 | 4 |"
	got := ConvertTables(input)
	want := "- **A:** 1, **B:** 2\n\nmiddle\n\n- **C:** 3, **D:** 4"
	if got != want {
		t.Errorf("ConvertTables() = %q, want %q", got, want)
	}
}

func TestHasTables(t *testing.T) {
	if HasTables("plain text") {
		t.Error("HasTables() = true for plain text")
	}
	if !HasTables("| A |\n|---|\n| 1 |") {
		t.Error("HasTables() = false for a valid table")
	}
}
