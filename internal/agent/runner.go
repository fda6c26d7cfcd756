package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reun10n/kuro/internal/markdown"
	"github.com/reun10n/kuro/internal/observability"
	"github.com/reun10n/kuro/pkg/models"
)

const (
	// DefaultMaxIterations bounds model/tool round trips within one turn.
	DefaultMaxIterations = 10

	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 30 * time.Second

	// DefaultBufferedTimeout is the overall deadline for a buffered turn.
	DefaultBufferedTimeout = 45 * time.Second

	// DefaultRetryDelay is the pause before retrying a transient fault.
	DefaultRetryDelay = 2 * time.Second
)

// tookTooLongReply is what a buffered caller gets instead of an error when
// the turn deadline fires. Buffered surfaces want a reply, not a stack trace.
const tookTooLongReply = "sorry, that took too long. try again?"

// HistoryStore is the conversation persistence the runner needs.
type HistoryStore interface {
	Get(conversationID string) []models.Turn
	Append(conversationID string, turns ...models.Turn)
	Clear(conversationID string)
}

// HistoryCompactor bounds the history sent to the model.
type HistoryCompactor interface {
	Compact(ctx context.Context, turns []models.Turn) []models.Turn
	KeepRecent() int
}

// RunnerConfig configures a Runner. Zero values take the defaults above.
type RunnerConfig struct {
	Model           string
	SystemPrompt    string
	MaxTokens       int
	MaxIterations   int
	ToolTimeout     time.Duration
	BufferedTimeout time.Duration
	RetryDelay      time.Duration

	// HeartbeatInterval and InactivityTimeout apply to streaming turns
	// only. See the defaults in stream.go.
	HeartbeatInterval time.Duration
	InactivityTimeout time.Duration
}

func (c *RunnerConfig) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.BufferedTimeout <= 0 {
		c.BufferedTimeout = DefaultBufferedTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
}

// Runner executes agent turns: it assembles history, drives the model/tool
// round-trip loop, and commits completed turns back to the store.
//
// A Runner is safe for concurrent use across conversations. Within one
// conversation the caller must not overlap turns; the chat layer serializes
// them per channel.
type Runner struct {
	provider  LLMProvider
	registry  *ToolRegistry
	history   HistoryStore
	compactor HistoryCompactor
	cfg       RunnerConfig
	logger    *slog.Logger
}

func NewRunner(provider LLMProvider, registry *ToolRegistry, history HistoryStore, compactor HistoryCompactor, cfg RunnerConfig, logger *slog.Logger) *Runner {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		provider:  provider,
		registry:  registry,
		history:   history,
		compactor: compactor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one buffered turn and returns the formatted final answer.
//
// The turn runs under an overall deadline. A deadline hit is not an error
// from the caller's point of view: they get a short apology string back.
// On success the turn is committed to history and markdown tables in the
// answer are rewritten as bullet lists.
func (r *Runner) Run(ctx context.Context, conversationID, userText string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.BufferedTimeout)
	defer cancel()

	turns, final, err := r.runWithRecovery(ctx, conversationID, userText, nil)
	observability.TurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			observability.TurnsTotal.WithLabelValues("buffered", "timeout").Inc()
			r.logger.Warn("buffered turn hit deadline",
				"conversation_id", conversationID,
				"elapsed", time.Since(start))
			return tookTooLongReply, nil
		}
		observability.TurnsTotal.WithLabelValues("buffered", "error").Inc()
		return "", err
	}

	r.history.Append(conversationID, turns...)
	observability.TurnsTotal.WithLabelValues("buffered", "ok").Inc()
	return markdown.ConvertTables(final), nil
}

// runWithRecovery runs one turn and applies the fault-class recovery policy
// when the provider fails:
//
//   - transient (rate limit, 5xx, timeout): wait briefly, retry once with
//     the request unchanged
//   - context (400-class, oversized history): retry once with history
//     force-trimmed to the recent tail; if that also fails the stored
//     history is reset so the next turn starts clean
//   - anything else: propagate after the single attempt
//
// A failed attempt commits nothing, so retries can never duplicate turns.
// Image events the caller already received are an exception: the retry
// re-runs tool rounds, so attachments delivered during the failed attempt
// are filtered out of the retry's emit path.
func (r *Runner) runWithRecovery(ctx context.Context, conversationID, userText string, emit func(Event)) ([]models.Turn, string, error) {
	sent := make(sentImages)
	turns, final, err := r.runTurn(ctx, conversationID, userText, turnOptions{emit: sent.record(emit)})
	if err == nil {
		return turns, final, nil
	}

	switch class := classifyFault(err); class {
	case faultTransient:
		r.logger.Warn("transient provider fault, retrying",
			"conversation_id", conversationID, "error", err)
		observability.RetriesTotal.WithLabelValues(class.String()).Inc()
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(r.cfg.RetryDelay):
		}
		return r.runTurn(ctx, conversationID, userText, turnOptions{emit: sent.filter(emit)})

	case faultContext:
		keep := r.compactor.KeepRecent()
		r.logger.Warn("context fault, retrying with trimmed history",
			"conversation_id", conversationID, "keep_recent", keep, "error", err)
		observability.RetriesTotal.WithLabelValues(class.String()).Inc()
		turns, final, retryErr := r.runTurn(ctx, conversationID, userText, turnOptions{emit: sent.filter(emit), trimRecent: keep})
		if retryErr != nil {
			// Even the trimmed tail is rejected, so the stored history
			// itself is unusable. Reset it so the next turn starts clean.
			r.logger.Error("trimmed retry failed, resetting history",
				"conversation_id", conversationID, "error", retryErr)
			r.history.Clear(conversationID)
			return nil, "", retryErr
		}
		return turns, final, nil

	default:
		return nil, "", err
	}
}

// sentImages tracks image attachments already delivered to the caller so a
// retried attempt does not send the same file twice. Keyed by filename and
// size; duplicates within a single attempt are legitimate and pass through.
type sentImages map[string]bool

func imageKey(ev Event) string {
	return fmt.Sprintf("%s:%d", ev.Filename, len(ev.Data))
}

// record wraps emit, passing everything through while remembering which
// images went out.
func (s sentImages) record(emit func(Event)) func(Event) {
	if emit == nil {
		return nil
	}
	return func(ev Event) {
		if ev.Kind == EventImage {
			s[imageKey(ev)] = true
		}
		emit(ev)
	}
}

// filter wraps emit for a retry attempt, dropping images recorded during an
// earlier attempt.
func (s sentImages) filter(emit func(Event)) func(Event) {
	if emit == nil {
		return nil
	}
	return func(ev Event) {
		if ev.Kind == EventImage {
			key := imageKey(ev)
			if s[key] {
				return
			}
			s[key] = true
		}
		emit(ev)
	}
}

type turnOptions struct {
	// emit receives text deltas and image payloads as they become final.
	// Nil in buffered mode.
	emit func(Event)

	// trimRecent > 0 sends only the last n stored turns instead of the
	// compacted history. Used by context-fault recovery.
	trimRecent int
}

// runTurn executes a single attempt of one turn: compact history, then loop
// model rounds until a round produces no tool calls.
//
// Text produced in a round that also requests tools is preamble ("let me
// check...") and is never emitted to the caller; it stays in the transcript
// so the model keeps its own context. Only the final round's text becomes
// the answer, and its deltas are emitted in arrival order.
func (r *Runner) runTurn(ctx context.Context, conversationID, userText string, opts turnOptions) ([]models.Turn, string, error) {
	prior := r.history.Get(conversationID)
	if opts.trimRecent > 0 {
		prior = trimRecent(prior, opts.trimRecent)
	} else {
		prior = r.compactor.Compact(ctx, prior)
	}

	messages := TurnsToMessages(prior)
	messages = append(messages, CompletionMessage{Role: "user", Content: userText})

	newTurns := []models.Turn{{Role: models.RoleUser, Content: userText, CreatedAt: time.Now()}}
	tools := r.registry.Tools()

	for iteration := 0; iteration < r.cfg.MaxIterations; iteration++ {
		chunks, err := r.provider.Complete(ctx, &CompletionRequest{
			Model:     r.cfg.Model,
			System:    r.cfg.SystemPrompt,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: r.cfg.MaxTokens,
		})
		if err != nil {
			return nil, "", err
		}

		var text strings.Builder
		var deltas []string
		var toolCalls []models.ToolCall
		for chunk := range chunks {
			if chunk.Error != nil {
				return nil, "", chunk.Error
			}
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				deltas = append(deltas, chunk.Text)
			}
			if chunk.ToolCall != nil {
				tc := *chunk.ToolCall
				if tc.ID == "" {
					tc.ID = uuid.NewString()
				}
				toolCalls = append(toolCalls, tc)
			}
		}

		if len(toolCalls) == 0 {
			final := text.String()
			if opts.emit != nil {
				for _, d := range deltas {
					opts.emit(Event{Kind: EventText, Text: d})
				}
			}
			newTurns = append(newTurns, models.Turn{
				Role:      models.RoleAssistant,
				Content:   final,
				CreatedAt: time.Now(),
			})
			return newTurns, final, nil
		}

		r.logger.Debug("executing tool round",
			"conversation_id", conversationID,
			"iteration", iteration,
			"tool_calls", len(toolCalls))

		newTurns = append(newTurns, models.Turn{
			Role:      models.RoleAssistant,
			Content:   text.String(),
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		})
		messages = append(messages, CompletionMessage{
			Role:      "assistant",
			Content:   text.String(),
			ToolCalls: toolCalls,
		})

		results := r.executeTools(ctx, toolCalls, opts.emit)
		newTurns = append(newTurns, models.Turn{
			Role:        models.RoleTool,
			ToolResults: results,
			CreatedAt:   time.Now(),
		})
		messages = append(messages, CompletionMessage{
			Role:        "tool",
			ToolResults: results,
		})
	}

	return nil, "", fmt.Errorf("turn exceeded %d tool rounds", r.cfg.MaxIterations)
}

// executeTools runs one round's tool calls concurrently. Results keep the
// request order regardless of completion order. Binary payloads are handed
// to the caller as image events and replaced with a text stub before the
// results go back to the model or the store.
func (r *Runner) executeTools(ctx context.Context, calls []models.ToolCall, emit func(Event)) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, r.cfg.ToolTimeout)
			defer cancel()
			res := r.registry.Execute(tctx, call)
			outcome := "ok"
			if res.IsError {
				outcome = "error"
			}
			observability.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
			results[i] = *res
		}(i, call)
	}
	wg.Wait()

	for i := range results {
		if len(results[i].Data) == 0 {
			continue
		}
		if emit != nil {
			emit(Event{Kind: EventImage, Data: results[i].Data, Filename: results[i].Filename})
		}
		if results[i].Content == "" {
			results[i].Content = fmt.Sprintf("attached image %s (%d bytes)", results[i].Filename, len(results[i].Data))
		}
		results[i].Data = nil
	}
	return results
}

func trimRecent(turns []models.Turn, keep int) []models.Turn {
	if keep <= 0 || len(turns) <= keep {
		return turns
	}
	return turns[len(turns)-keep:]
}
