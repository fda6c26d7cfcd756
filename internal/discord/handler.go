// Package discord connects the agent core to Discord: it turns incoming
// messages into streaming turns and renders the event stream as throttled
// message edits.
package discord

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/internal/chunk"
	"github.com/reun10n/kuro/internal/history"
	"github.com/reun10n/kuro/internal/markdown"
)

const (
	// editInterval throttles streaming message edits. Discord rate limits
	// edits per channel; one edit a second keeps well clear.
	editInterval = time.Second

	clearedReply  = "🧹 cleared."
	busyReply     = "still working on the last one, hold on."
	failedReply   = "sorry, something went wrong. try again?"
	thinkingStub  = "..."
	emptyTurnNote = "(no response)"
)

// clearCommands reset the conversation history for the channel.
var clearCommands = map[string]bool{
	"clear":  true,
	"reset":  true,
	"forget": true,
}

// Handler routes Discord messages into agent turns. One turn runs per
// channel at a time; the per-channel guard is what upholds the history
// store's single-writer assumption.
type Handler struct {
	runner  *agent.Runner
	history *history.Store
	logger  *slog.Logger

	inflightMu sync.Mutex
	inflight   map[string]bool
}

func NewHandler(runner *agent.Runner, store *history.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:   runner,
		history:  store,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Register attaches the handler to a Discord session.
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(h.onMessageCreate)
}

// onMessageCreate responds to DMs and to guild messages that mention the
// bot. Everything else is ignored.
func (h *Handler) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	isDM := m.GuildID == ""
	if !isDM && !mentionsUser(m.Mentions, s.State.User) {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User))
	if content == "" {
		return
	}

	if clearCommands[strings.ToLower(content)] {
		h.history.Clear(m.ChannelID)
		if _, err := s.ChannelMessageSend(m.ChannelID, clearedReply); err != nil {
			h.logger.Warn("failed to send clear confirmation", "channel_id", m.ChannelID, "error", err)
		}
		return
	}

	if !h.tryAcquire(m.ChannelID) {
		if _, err := s.ChannelMessageSend(m.ChannelID, busyReply); err != nil {
			h.logger.Warn("failed to send busy notice", "channel_id", m.ChannelID, "error", err)
		}
		return
	}

	go func() {
		defer h.release(m.ChannelID)
		h.respond(s, m.ChannelID, content)
	}()
}

// respond runs one streaming turn and renders it into the channel with
// incremental edits of a placeholder message.
func (h *Handler) respond(s *discordgo.Session, channelID, userText string) {
	placeholder, err := s.ChannelMessageSend(channelID, thinkingStub)
	if err != nil {
		h.logger.Error("failed to send placeholder", "channel_id", channelID, "error", err)
		return
	}

	events := h.runner.Stream(context.Background(), channelID, userText)

	var text strings.Builder
	var statusLine string
	lastEdit := time.Now()
	turnErr := false

	edit := func(content string) {
		if content == "" {
			return
		}
		if len(content) > chunk.DiscordLimit {
			content = content[:chunk.DiscordLimit]
		}
		if _, err := s.ChannelMessageEdit(channelID, placeholder.ID, content); err != nil {
			h.logger.Warn("failed to edit message", "channel_id", channelID, "error", err)
		}
		lastEdit = time.Now()
	}

	for ev := range events {
		switch {
		case ev.Err != nil:
			// Stream already logged the cause; the channel just gets an
			// apology.
			turnErr = true
			edit(failedReply)

		case ev.Kind == agent.EventText:
			text.WriteString(ev.Text)
			if time.Since(lastEdit) >= editInterval {
				edit(markdown.ConvertTables(text.String()))
			}

		case ev.Kind == agent.EventStatus:
			statusLine = ev.Status
			if text.Len() == 0 && time.Since(lastEdit) >= editInterval {
				edit("_" + statusLine + "_")
			}

		case ev.Kind == agent.EventImage:
			if _, err := s.ChannelFileSend(channelID, ev.Filename, bytes.NewReader(ev.Data)); err != nil {
				h.logger.Warn("failed to send image", "channel_id", channelID, "filename", ev.Filename, "error", err)
			}
		}
	}

	if turnErr {
		return
	}

	final := markdown.ConvertTables(text.String())
	if strings.TrimSpace(final) == "" {
		edit(emptyTurnNote)
		return
	}

	chunks := chunk.Markdown(final, chunk.DiscordLimit)
	edit(chunks[0])
	for _, extra := range chunks[1:] {
		if _, err := s.ChannelMessageSend(channelID, extra); err != nil {
			h.logger.Warn("failed to send overflow chunk", "channel_id", channelID, "error", err)
		}
	}
}

func (h *Handler) tryAcquire(channelID string) bool {
	h.inflightMu.Lock()
	defer h.inflightMu.Unlock()
	if h.inflight[channelID] {
		return false
	}
	h.inflight[channelID] = true
	return true
}

func (h *Handler) release(channelID string) {
	h.inflightMu.Lock()
	delete(h.inflight, channelID)
	h.inflightMu.Unlock()
}

func mentionsUser(mentions []*discordgo.User, user *discordgo.User) bool {
	if user == nil {
		return false
	}
	for _, m := range mentions {
		if m.ID == user.ID {
			return true
		}
	}
	return false
}

// stripMention removes a leading bot mention from the message text.
func stripMention(content string, user *discordgo.User) string {
	if user == nil {
		return content
	}
	for _, form := range []string{"<@" + user.ID + ">", "<@!" + user.ID + ">"} {
		if strings.HasPrefix(content, form) {
			return strings.TrimPrefix(content, form)
		}
	}
	return content
}
