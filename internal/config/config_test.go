package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kuro.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DISCORD_BOT_TOKEN", "DISCORD_GUILD_ID",
		"KURO_PROVIDER", "KURO_MODEL",
		"OPENROUTER_API_KEY", "ANTHROPIC_API_KEY",
		"TWITTER_BEARER_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
discord:
  token: file-token
  guild_id: "12345"
agent:
  provider: openrouter
  model: some/model
  api_key: file-key
  summarize_after: 50
  keep_recent: 5
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "file-token" || cfg.Discord.GuildID != "12345" {
		t.Errorf("discord config = %+v", cfg.Discord)
	}
	if cfg.Agent.Model != "some/model" || cfg.Agent.APIKey != "file-key" {
		t.Errorf("agent config = %+v", cfg.Agent)
	}
	if cfg.Agent.SummarizeAfter != 50 || cfg.Agent.KeepRecent != 5 {
		t.Errorf("compaction config = %+v", cfg.Agent)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
discord:
  token: tok
agent:
  api_key: key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Provider != "openrouter" {
		t.Errorf("Provider = %q, want openrouter default", cfg.Agent.Provider)
	}
	if cfg.Agent.Model != "google/gemini-2.0-flash-001" {
		t.Errorf("Model = %q, want default", cfg.Agent.Model)
	}
	if cfg.Agent.SystemPrompt != DefaultSystemPrompt {
		t.Error("SystemPrompt default not applied")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
discord:
  token: file-token
agent:
  api_key: file-key
`)
	t.Setenv("DISCORD_BOT_TOKEN", "env-token")
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("KURO_MODEL", "env/model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("Token = %q, env must win over file", cfg.Discord.Token)
	}
	if cfg.Agent.APIKey != "env-key" {
		t.Errorf("APIKey = %q, env must win over file", cfg.Agent.APIKey)
	}
	if cfg.Agent.Model != "env/model" {
		t.Errorf("Model = %q", cfg.Agent.Model)
	}
}

func TestLoadAnthropicKeySelection(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
discord:
  token: tok
agent:
  provider: anthropic
  model: claude-sonnet-4-20250514
`)
	t.Setenv("OPENROUTER_API_KEY", "wrong-key")
	t.Setenv("ANTHROPIC_API_KEY", "right-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.APIKey != "right-key" {
		t.Errorf("APIKey = %q, want the anthropic key for the anthropic provider", cfg.Agent.APIKey)
	}
}

func TestLoadMissingFileWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "tok")
	t.Setenv("OPENROUTER_API_KEY", "key")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, missing file should be fine with env secrets", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Errorf("Token = %q", cfg.Discord.Token)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing token",
			yaml:    "agent:\n  api_key: key\n",
			wantErr: "discord token",
		},
		{
			name:    "missing api key",
			yaml:    "discord:\n  token: tok\n",
			wantErr: "API key",
		},
		{
			name:    "unknown provider",
			yaml:    "discord:\n  token: tok\nagent:\n  api_key: key\n  provider: llamacpp\n",
			wantErr: "unknown provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "discord: [not: valid"))
	if err == nil {
		t.Error("Load() should reject malformed YAML")
	}
}
