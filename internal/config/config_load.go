package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with the stock setup: file-backed state, the
// gemini provider, the WebSocket channel on, and the chat channels off
// until a token shows up.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Telegram: TelegramConfig{
			Mode: "polling",
		},
		WS: WSConfig{
			Enabled: true,
		},
		Agents: AgentsConfig{
			Default: DefaultAgentID,
		},
		State: StateConfig{
			Backend: "file",
			Dir:     "data/user_states",
		},
		Provider: ProviderConfig{
			Name: "gemini",
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "estudai",
		},
	}
}

// Path resolves the config file location: the --config flag value, then
// ESTUDAI_CONFIG, then config.json in the working directory.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("ESTUDAI_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Load reads config from a JSON5 file, overlays env vars and validates the
// result. A missing file is fine; defaults plus env drive everything.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values, and ESTUDAI_* names over the bare names kept
// from the first deployment.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envPort := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil && port > 0 {
				*dst = port
			}
		}
	}

	// The provider name first; the bare API key name below depends on it.
	envStr("ESTUDAI_PROVIDER", &c.Provider.Name)

	envStr("TELEGRAM_TOKEN", &c.Telegram.Token)
	switch c.Provider.Name {
	case "gemini":
		envStr("GEMINI_API_KEY", &c.Provider.APIKey)
	case "openai":
		envStr("OPENAI_API_KEY", &c.Provider.APIKey)
	}
	envPort("PORT", &c.Server.Port)

	envStr("ESTUDAI_HOST", &c.Server.Host)
	envPort("ESTUDAI_PORT", &c.Server.Port)
	envStr("ESTUDAI_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("ESTUDAI_TELEGRAM_MODE", &c.Telegram.Mode)
	envStr("ESTUDAI_DISCORD_TOKEN", &c.Discord.Token)
	envStr("ESTUDAI_MODEL", &c.Provider.Model)
	envStr("ESTUDAI_API_KEY", &c.Provider.APIKey)
	envStr("ESTUDAI_STATE_BACKEND", &c.State.Backend)
	envStr("ESTUDAI_STATE_DIR", &c.State.Dir)
	envStr("ESTUDAI_SQLITE_PATH", &c.State.SQLitePath)
	envStr("ESTUDAI_POSTGRES_DSN", &c.State.PostgresDSN)
	envStr("ESTUDAI_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	envStr("ESTUDAI_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("ESTUDAI_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("ESTUDAI_TSNET_DIR", &c.Tailscale.StateDir)

	// A token from anywhere switches the channel on.
	if c.Telegram.Token != "" {
		c.Telegram.Enabled = true
	}
	if c.Discord.Token != "" {
		c.Discord.Enabled = true
	}
	if c.Tracing.Endpoint != "" {
		c.Tracing.Enabled = true
	}
}

// Save writes the config to disk. Fields tagged json:"-" (the Postgres DSN,
// the tailnet auth key) never land in the file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash fingerprints the config so reloads that change nothing can be
// skipped.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with token fields masked, for
// display in the channels and doctor commands.
func (c *Config) MaskedCopy() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Telegram.Token)
	maskNonEmpty(&cp.Discord.Token)
	maskNonEmpty(&cp.Provider.APIKey)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
