// Command kuro runs the CTF team Discord agent.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/internal/agent/providers"
	"github.com/reun10n/kuro/internal/config"
	"github.com/reun10n/kuro/internal/discord"
	"github.com/reun10n/kuro/internal/history"
	"github.com/reun10n/kuro/internal/observability"
	"github.com/reun10n/kuro/internal/tools/ctfcal"
	"github.com/reun10n/kuro/internal/tools/imagefetch"
	"github.com/reun10n/kuro/internal/tools/social"
	"github.com/reun10n/kuro/internal/tools/webpage"
	"github.com/reun10n/kuro/internal/tools/websearch"
)

func main() {
	var configPath string
	var logLevel string

	root := &cobra.Command{
		Use:   "kuro",
		Short: "CTF team Discord agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "kuro.yaml", "path to config file")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	store := history.NewStore()
	compactor := history.NewCompactor(
		history.NewAgentSummarizer(provider, cfg.Agent.Model),
		history.CompactorOptions{
			SummarizeAfter: cfg.Agent.SummarizeAfter,
			KeepRecent:     cfg.Agent.KeepRecent,
			Logger:         logger,
		},
	)

	registry := agent.NewToolRegistry()
	searchTool := websearch.New()
	for _, tool := range []agent.Tool{
		searchTool,
		webpage.New(),
		social.New(cfg.Twitter.BearerToken, searchTool),
		imagefetch.New(),
		ctfcal.New(),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	runner := agent.NewRunner(provider, registry, store, compactor, agent.RunnerConfig{
		Model:        cfg.Agent.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTokens:    cfg.Agent.MaxTokens,
	}, logger)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	discord.NewHandler(runner, store, logger).Register(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	defer session.Close()

	yearly := discord.NewYearlyUpdater(session, cfg.Discord.GuildID, logger)
	if err := yearly.Start(); err != nil {
		return fmt.Errorf("start yearly updater: %w", err)
	}
	defer yearly.Stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	logger.Info("kuro is running",
		"provider", provider.Name(),
		"model", cfg.Agent.Model,
		"tools", registry.List())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	return nil
}

func newProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.Agent.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Agent.APIKey,
			DefaultModel: cfg.Agent.Model,
		})
	default:
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       cfg.Agent.APIKey,
			DefaultModel: cfg.Agent.Model,
		})
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
