// Package config loads bot configuration from a YAML file with environment
// variable overrides for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the bot persona used when the config does not set
// one. Prompt content is operator-configurable and nothing depends on its
// wording.
const DefaultSystemPrompt = "You are Kuro, the assistant of a competitive CTF team. " +
	"You help with challenge analysis, tooling, writeups, and competition logistics. " +
	"Be direct and technical. Use your tools when a question needs current information. " +
	"Keep answers short unless detail is asked for."

// Config is the root configuration.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Agent   AgentConfig   `yaml:"agent"`
	Twitter TwitterConfig `yaml:"twitter"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DiscordConfig configures the Discord connection.
type DiscordConfig struct {
	Token string `yaml:"token"`

	// GuildID scopes the yearly category job. Empty disables it.
	GuildID string `yaml:"guild_id"`
}

// AgentConfig configures the model backend and turn behavior.
type AgentConfig struct {
	// Provider selects the backend: "openrouter" (default) or "anthropic".
	Provider string `yaml:"provider"`

	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`

	// SummarizeAfter and KeepRecent tune history compaction. Zero values
	// take the package defaults.
	SummarizeAfter int `yaml:"summarize_after"`
	KeepRecent     int `yaml:"keep_recent"`
}

// TwitterConfig configures the X search tool. An empty bearer token makes
// the tool fall back to web search.
type TwitterConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// MetricsConfig configures the prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the config file at path, applies environment overrides, and
// validates. A missing file is fine as long as the env provides the
// required secrets.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("KURO_PROVIDER"); v != "" {
		c.Agent.Provider = v
	}
	if v := os.Getenv("KURO_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && c.Agent.Provider != "anthropic" {
		c.Agent.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Agent.Provider == "anthropic" {
		c.Agent.APIKey = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		c.Twitter.BearerToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Agent.Provider == "" {
		c.Agent.Provider = "openrouter"
	}
	if c.Agent.Model == "" && c.Agent.Provider == "openrouter" {
		c.Agent.Model = "google/gemini-2.0-flash-001"
	}
	if c.Agent.SystemPrompt == "" {
		c.Agent.SystemPrompt = DefaultSystemPrompt
	}
}

func (c *Config) validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required (discord.token or DISCORD_BOT_TOKEN)")
	}
	if c.Agent.APIKey == "" {
		return fmt.Errorf("agent API key is required (agent.api_key, OPENROUTER_API_KEY, or ANTHROPIC_API_KEY)")
	}
	switch c.Agent.Provider {
	case "openrouter", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q (want openrouter or anthropic)", c.Agent.Provider)
	}
	return nil
}
