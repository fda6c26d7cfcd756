package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	// DefaultSummarizeAfter is the turn count past which a conversation is
	// compacted before being sent to the model.
	DefaultSummarizeAfter = 100

	// DefaultKeepRecent is how many trailing turns survive compaction
	// verbatim.
	DefaultKeepRecent = 10

	// DefaultSummarizeTimeout bounds the summarization call. Compaction sits
	// on the critical path of every long-conversation turn, so it gets a
	// short leash and a fallback rather than a generous budget.
	DefaultSummarizeTimeout = 8 * time.Second
)

const summarizerInstructions = "Summarize the conversation concisely. " +
	"Keep all technical details, CTF challenge names, flags, code, and decisions. " +
	"Skip small talk. No preamble."

// Summarizer condenses a span of turns into replacement turns.
type Summarizer interface {
	Summarize(ctx context.Context, turns []models.Turn) ([]models.Turn, error)
}

// Compactor bounds outbound history size. It transforms the copy of history
// handed to the model; the store itself keeps the full record.
type Compactor struct {
	summarizer Summarizer
	after      int
	keepRecent int
	timeout    time.Duration
	logger     *slog.Logger
}

// CompactorOptions configures a Compactor. Zero values take the defaults.
type CompactorOptions struct {
	SummarizeAfter int
	KeepRecent     int
	Timeout        time.Duration
	Logger         *slog.Logger
}

func NewCompactor(summarizer Summarizer, opts CompactorOptions) *Compactor {
	if opts.SummarizeAfter <= 0 {
		opts.SummarizeAfter = DefaultSummarizeAfter
	}
	if opts.KeepRecent <= 0 {
		opts.KeepRecent = DefaultKeepRecent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSummarizeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Compactor{
		summarizer: summarizer,
		after:      opts.SummarizeAfter,
		keepRecent: opts.KeepRecent,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// KeepRecent returns how many trailing turns survive compaction.
func (c *Compactor) KeepRecent() int {
	return c.keepRecent
}

// Compact returns the history to actually send. Short conversations pass
// through untouched. Long ones are split into an old span and the recent
// tail; the old span is summarized and replaced.
//
// If summarization fails or times out, the old span is dropped and only the
// recent tail is returned. Losing old context is preferable to failing the
// user's turn, and the trade is logged when it happens.
func (c *Compactor) Compact(ctx context.Context, turns []models.Turn) []models.Turn {
	if len(turns) <= c.after {
		return turns
	}

	split := len(turns) - c.keepRecent
	old, recent := turns[:split], turns[split:]

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	summary, err := c.summarizer.Summarize(sctx, old)
	if err != nil {
		c.logger.Warn("summarization failed, dropping old context",
			"turns_dropped", len(old),
			"turns_kept", len(recent),
			"error", err)
		return recent
	}

	return append(summary, recent...)
}

// TrimRecent returns at most the last keep turns. Used when a context fault
// forces a retry with a smaller request.
func TrimRecent(turns []models.Turn, keep int) []models.Turn {
	if keep <= 0 || len(turns) <= keep {
		return turns
	}
	return turns[len(turns)-keep:]
}

// AgentSummarizer summarizes with a dedicated model call using fixed
// instructions, independent of the conversation's own system prompt.
type AgentSummarizer struct {
	provider agent.LLMProvider
	model    string
}

func NewAgentSummarizer(provider agent.LLMProvider, model string) *AgentSummarizer {
	return &AgentSummarizer{provider: provider, model: model}
}

// Summarize renders the turns as a transcript, asks the model to condense
// it, and returns a user/assistant turn pair carrying the summary so the
// compacted history still alternates correctly.
func (s *AgentSummarizer) Summarize(ctx context.Context, turns []models.Turn) ([]models.Turn, error) {
	transcript := renderTranscript(turns)

	chunks, err := s.provider.Complete(ctx, &agent.CompletionRequest{
		Model:  s.model,
		System: summarizerInstructions,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summary, err := agent.CollectText(chunks)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summarize: empty summary")
	}

	now := time.Now()
	return []models.Turn{
		{Role: models.RoleUser, Content: "Summarize our conversation so far.", CreatedAt: now},
		{Role: models.RoleAssistant, Content: summary, CreatedAt: now},
	}, nil
}

func renderTranscript(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case models.RoleTool:
			for _, tr := range t.ToolResults {
				fmt.Fprintf(&b, "[tool result] %s\n", tr.Content)
			}
		default:
			if t.Content != "" {
				fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
			}
			for _, tc := range t.ToolCalls {
				fmt.Fprintf(&b, "[%s called %s]\n", t.Role, tc.Name)
			}
		}
	}
	return b.String()
}
