// Package chunk splits outbound text into platform-sized chunks without
// breaking mid-word or inside code fences.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

// DiscordLimit is the chunk size used for Discord messages. Discord caps
// messages at 2000 characters; the margin leaves room for formatting the
// send path may add around a chunk.
const DiscordLimit = 1900

// Text splits text into chunks that fit within limit, preferring to break
// at newlines, then whitespace, then hard breaks.
func Text(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > limit {
		window := remaining[:limit]
		lastNewline, lastWhitespace := scanBreakpoints(window)

		var breakIdx int
		if lastNewline > 0 {
			breakIdx = lastNewline
		} else if lastWhitespace > 0 {
			breakIdx = lastWhitespace
		} else {
			breakIdx = limit
		}

		chunk := strings.TrimRight(remaining[:breakIdx], " \t")
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}

		nextStart := breakIdx
		if breakIdx < len(remaining) && unicode.IsSpace(rune(remaining[breakIdx])) {
			nextStart++
		}
		remaining = strings.TrimLeft(remaining[nextStart:], " \t")
	}

	if len(remaining) > 0 {
		chunks = append(chunks, remaining)
	}

	return chunks
}

// Markdown splits markdown text into chunks, preserving code fence
// integrity. A split inside a fence closes it at the chunk boundary and
// reopens it in the next chunk, so every chunk renders correctly alone.
func Markdown(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > limit {
		spans := parseFenceSpans(remaining)
		window := remaining[:limit]

		breakIdx := pickSafeBreakIndex(window, spans)
		if breakIdx <= 0 {
			breakIdx = limit
		}

		fence := findFenceAtIndex(spans, breakIdx)

		chunk := remaining[:breakIdx]
		next := remaining[breakIdx:]

		if fence != nil && !isSafeBreak(spans, breakIdx) {
			closeLine := fence.Indent + fence.Marker
			if !strings.HasSuffix(chunk, "\n") {
				chunk += "\n"
			}
			chunk += closeLine
			next = fence.OpenLine + "\n" + next
		} else {
			next = strings.TrimLeft(next, "\n")
		}

		chunks = append(chunks, chunk)
		remaining = next
	}

	if len(remaining) > 0 {
		chunks = append(chunks, remaining)
	}

	return chunks
}

type fenceSpan struct {
	Start    int
	End      int
	Indent   string
	Marker   string
	OpenLine string
}

var fenceRegex = regexp.MustCompile("(?m)^([ \t]*)(```+|~~~+)([^\n]*)\n")

func parseFenceSpans(text string) []fenceSpan {
	var spans []fenceSpan
	consumed := 0

	for consumed < len(text) {
		remaining := text[consumed:]
		match := fenceRegex.FindStringSubmatchIndex(remaining)
		if match == nil {
			break
		}
		if len(match) < 8 {
			consumed += match[1]
			continue
		}

		start := consumed + match[0]
		indent := remaining[match[2]:match[3]]
		marker := remaining[match[4]:match[5]]
		openLine := remaining[match[0] : match[1]-1]

		// Closing fence must match the same indent and marker length.
		searchStart := match[1]
		closePattern := regexp.MustCompile("(?m)^" + regexp.QuoteMeta(indent) + regexp.QuoteMeta(marker) + "[ \t]*$")
		closeMatch := closePattern.FindStringIndex(remaining[searchStart:])

		var end int
		if closeMatch != nil {
			end = consumed + searchStart + closeMatch[1]
		} else {
			end = len(text)
		}

		spans = append(spans, fenceSpan{
			Start:    start,
			End:      end,
			Indent:   indent,
			Marker:   marker,
			OpenLine: openLine,
		})
		consumed = end
	}

	return spans
}

func findFenceAtIndex(spans []fenceSpan, idx int) *fenceSpan {
	for i := range spans {
		if idx >= spans[i].Start && idx < spans[i].End {
			return &spans[i]
		}
	}
	return nil
}

func isSafeBreak(spans []fenceSpan, idx int) bool {
	fence := findFenceAtIndex(spans, idx)
	if fence == nil {
		return true
	}
	return idx >= fence.End
}

func pickSafeBreakIndex(window string, spans []fenceSpan) int {
	lastNewline := -1
	lastWhitespace := -1

	for i := 0; i < len(window); i++ {
		if !isSafeBreak(spans, i) {
			continue
		}
		c := window[i]
		if c == '\n' {
			lastNewline = i
		} else if unicode.IsSpace(rune(c)) {
			lastWhitespace = i
		}
	}

	if lastNewline > 0 {
		return lastNewline
	}
	if lastWhitespace > 0 {
		return lastWhitespace
	}
	return -1
}

func scanBreakpoints(window string) (lastNewline, lastWhitespace int) {
	lastNewline = -1
	lastWhitespace = -1

	for i := 0; i < len(window); i++ {
		c := window[i]
		if c == '\n' {
			lastNewline = i
		} else if unicode.IsSpace(rune(c)) {
			lastWhitespace = i
		}
	}

	return lastNewline, lastWhitespace
}
