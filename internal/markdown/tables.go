// Package markdown rewrites markdown tables into bullet lists. Discord has
// no table rendering, so pipe tables come out as unreadable monospace soup
// unless they are converted before sending.
package markdown

import (
	"regexp"
	"strings"
)

// Table is a parsed markdown pipe table.
type Table struct {
	Headers []string
	Rows    [][]string

	// Raw is the original table text.
	Raw string

	// StartIndex and EndIndex locate the table in the original text.
	StartIndex int
	EndIndex   int
}

// tableRowRegex matches markdown table rows.
var tableRowRegex = regexp.MustCompile(`^\s*\|(.+)\|\s*$`)

// separatorRegex matches table separator rows (|---|---|).
var separatorRegex = regexp.MustCompile(`^\s*\|[\s\-:|]+\|\s*$`)

// ConvertTables rewrites every markdown table in text as a bullet list, one
// bullet per data row:
//
//	- **Header1:** cell1, **Header2:** cell2
//
// Text without well-formed tables (missing separator row, no data rows)
// passes through unchanged. The output contains no pipe tables, so running
// the conversion again is a no-op.
func ConvertTables(text string) string {
	tables := FindTables(text)
	if len(tables) == 0 {
		return text
	}

	// Replace in reverse order so earlier indices stay valid.
	result := text
	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		result = result[:table.StartIndex] + tableToBullets(table) + result[table.EndIndex:]
	}
	return result
}

// FindTables finds all markdown tables in the text.
func FindTables(text string) []Table {
	var tables []Table
	lines := strings.Split(text, "\n")

	i := 0
	for i < len(lines) {
		if tableRowRegex.MatchString(lines[i]) {
			table, endLine := parseTable(lines, i)
			if table != nil {
				raw := strings.Join(lines[i:endLine], "\n")

				startIdx := 0
				for j := 0; j < i; j++ {
					startIdx += len(lines[j]) + 1
				}
				endIdx := startIdx + len(raw)
				if endIdx > len(text) {
					endIdx = len(text)
				}

				table.StartIndex = startIdx
				table.EndIndex = endIdx
				table.Raw = raw
				tables = append(tables, *table)
				i = endLine
				continue
			}
		}
		i++
	}

	return tables
}

// parseTable attempts to parse a table starting at lineIdx. Returns the
// table and the line index after it, or nil if the lines are not a valid
// table (no separator row, or no data rows).
func parseTable(lines []string, lineIdx int) (*Table, int) {
	if lineIdx >= len(lines) {
		return nil, lineIdx
	}

	headers := parseCells(lines[lineIdx])
	if len(headers) == 0 {
		return nil, lineIdx
	}

	if lineIdx+1 >= len(lines) || !separatorRegex.MatchString(lines[lineIdx+1]) {
		return nil, lineIdx
	}

	table := &Table{Headers: headers}

	endLine := lineIdx + 2
	for endLine < len(lines) {
		if !tableRowRegex.MatchString(lines[endLine]) {
			break
		}
		cells := parseCells(lines[endLine])
		for len(cells) < len(headers) {
			cells = append(cells, "")
		}
		table.Rows = append(table.Rows, cells)
		endLine++
	}

	if len(table.Rows) == 0 {
		return nil, lineIdx
	}

	return table, endLine
}

// parseCells extracts trimmed cells from a table row.
func parseCells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")

	parts := strings.Split(row, "|")
	var cells []string
	for _, part := range parts {
		cells = append(cells, strings.TrimSpace(part))
	}
	return cells
}

func tableToBullets(table Table) string {
	var lines []string
	for _, row := range table.Rows {
		var parts []string
		for i, cell := range row {
			if cell == "" {
				continue
			}
			if i < len(table.Headers) && table.Headers[i] != "" {
				parts = append(parts, "**"+table.Headers[i]+":** "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, "- "+strings.Join(parts, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

// HasTables reports whether the text contains any markdown tables.
func HasTables(text string) bool {
	return len(FindTables(text)) > 0
}
