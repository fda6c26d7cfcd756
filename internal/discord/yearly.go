package discord

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
)

// YearlyUpdater keeps the guild's per-year channel categories in place:
// "ctf-<year>" for the current season and "archive-<year>" for moving
// finished competitions out of the way. Checked daily so the categories
// appear shortly after new year without anyone remembering to make them.
type YearlyUpdater struct {
	session *discordgo.Session
	guildID string
	logger  *slog.Logger
	cron    *cron.Cron
	now     func() time.Time
}

func NewYearlyUpdater(session *discordgo.Session, guildID string, logger *slog.Logger) *YearlyUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &YearlyUpdater{
		session: session,
		guildID: guildID,
		logger:  logger,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules the daily check and runs one immediately.
func (u *YearlyUpdater) Start() error {
	if u.guildID == "" {
		return nil
	}
	if _, err := u.cron.AddFunc("@daily", u.check); err != nil {
		return fmt.Errorf("schedule yearly update: %w", err)
	}
	u.cron.Start()
	go u.check()
	return nil
}

// Stop halts the schedule.
func (u *YearlyUpdater) Stop() {
	u.cron.Stop()
}

func (u *YearlyUpdater) check() {
	year := u.now().Year()
	for _, name := range []string{
		fmt.Sprintf("ctf-%d", year),
		fmt.Sprintf("archive-%d", year),
	} {
		if err := u.ensureCategory(name); err != nil {
			u.logger.Error("failed to ensure category", "guild_id", u.guildID, "category", name, "error", err)
		}
	}
}

func (u *YearlyUpdater) ensureCategory(name string) error {
	channels, err := u.session.GuildChannels(u.guildID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			return nil
		}
	}

	_, err = u.session.GuildChannelCreateComplex(u.guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	u.logger.Info("created yearly category", "guild_id", u.guildID, "category", name)
	return nil
}
