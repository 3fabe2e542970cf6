package config

// TelegramConfig configures the Telegram channel. A token arriving via env
// flips Enabled on.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token,omitempty"`
	Mode      string   `json:"mode,omitempty"` // "polling" (default) or "webhook"
	AllowFrom []string `json:"allow_from,omitempty"`
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token,omitempty"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// WSConfig configures the WebSocket channel on /ws. It is on by default;
// absent fields leave the default untouched.
type WSConfig struct {
	Enabled bool `json:"enabled"`
}
