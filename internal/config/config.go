// Package config loads the estudai configuration: a JSON5 file overlaid
// with environment variables, validated, and optionally watched for changes
// so agent bindings and reminders can be swapped without a restart.
package config

import (
	"fmt"

	"github.com/adhocore/gronx"

	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/scheduler"
	"github.com/estudolab/estudai/internal/state"
	"github.com/estudolab/estudai/internal/tracing"
)

// DefaultAgentID receives untargeted study traffic unless agents.default
// says otherwise.
const DefaultAgentID = "estudos"

// Config is the full configuration tree. Load builds it once; reloads build
// a fresh tree rather than mutating a live one.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Telegram  TelegramConfig   `json:"telegram"`
	Discord   DiscordConfig    `json:"discord"`
	WS        WSConfig         `json:"ws"`
	Agents    AgentsConfig     `json:"agents"`
	State     StateConfig      `json:"state"`
	Provider  ProviderConfig   `json:"provider"`
	Reminders []ReminderConfig `json:"reminders,omitempty"`
	Tracing   TracingConfig    `json:"tracing"`
	Tailscale TailscaleConfig  `json:"tailscale"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// RateLimitRPM caps inbound webhook and study requests per client IP
	// per minute. Zero disables the limit.
	RateLimitRPM int `json:"rate_limit_rpm,omitempty"`
}

// AgentsConfig names the fallback agent and the routing bindings.
type AgentsConfig struct {
	Default  string         `json:"default"`
	Bindings []AgentBinding `json:"bindings,omitempty"`
}

// AgentBinding routes matching traffic to one agent. Bindings are checked
// in file order; the first match wins.
type AgentBinding struct {
	Agent string       `json:"agent"`
	Match BindingMatch `json:"match"`
}

// BindingMatch narrows a binding. Empty fields match everything.
type BindingMatch struct {
	Command string `json:"command,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ToBindings converts the agents section into router bindings.
func (a AgentsConfig) ToBindings() []mcp.Binding {
	out := make([]mcp.Binding, 0, len(a.Bindings))
	for _, b := range a.Bindings {
		out = append(out, mcp.Binding{
			AgentID: b.Agent,
			Match: mcp.BindingMatch{
				Command: b.Match.Command,
				Channel: b.Match.Channel,
			},
		})
	}
	return out
}

// StateConfig selects the per-user state backend. The Postgres DSN never
// lives in the file; it comes from ESTUDAI_POSTGRES_DSN.
type StateConfig struct {
	Backend     string `json:"backend"`
	Dir         string `json:"dir,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// ToOptions converts the state section into store options, with ~ expanded.
func (s StateConfig) ToOptions() state.Options {
	return state.Options{
		Backend:     s.Backend,
		Dir:         ExpandHome(s.Dir),
		SQLitePath:  ExpandHome(s.SQLitePath),
		PostgresDSN: s.PostgresDSN,
	}
}

// ProviderConfig selects the model provider. An empty model means the
// provider's default.
type ProviderConfig struct {
	Name   string `json:"name"`
	Model  string `json:"model,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// ReminderConfig is one scheduled study nudge. Schedule is a five-field
// cron expression evaluated on the minute.
type ReminderConfig struct {
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
	Topico   string `json:"topico,omitempty"`
	UserID   string `json:"user_id"`
	Channel  string `json:"channel"`
	ChatID   int64  `json:"chat_id,omitempty"`
}

// ReminderJobs converts the reminders section into scheduler jobs.
func (c *Config) ReminderJobs() []scheduler.Job {
	jobs := make([]scheduler.Job, 0, len(c.Reminders))
	for _, r := range c.Reminders {
		jobs = append(jobs, scheduler.Job{
			Schedule: r.Schedule,
			Command:  r.Command,
			Topico:   r.Topico,
			UserID:   r.UserID,
			Channel:  r.Channel,
			ChatID:   r.ChatID,
		})
	}
	return jobs
}

// TracingConfig configures OTLP span export. Setting the endpoint via
// ESTUDAI_OTLP_ENDPOINT enables export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"otlp_endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// ToOptions converts the tracing section into exporter options.
func (t TracingConfig) ToOptions() tracing.Options {
	return tracing.Options{
		Enabled:     t.Enabled,
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		ServiceName: t.ServiceName,
	}
}

// TailscaleConfig serves the gateway on a tailnet when Hostname is set.
// The auth key is env-only (ESTUDAI_TSNET_AUTH_KEY).
type TailscaleConfig struct {
	Hostname string `json:"hostname,omitempty"`
	StateDir string `json:"state_dir,omitempty"`
	AuthKey  string `json:"-"`
}

// Validate rejects values the gateway cannot run with. It runs after the
// env overlay, so it sees the effective config.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRPM < 0 {
		return fmt.Errorf("server.rate_limit_rpm must not be negative")
	}
	switch c.Telegram.Mode {
	case "", "polling", "webhook":
	default:
		return fmt.Errorf("telegram.mode %q is not polling or webhook", c.Telegram.Mode)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram is enabled but has no token")
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return fmt.Errorf("discord is enabled but has no token")
	}
	switch c.State.Backend {
	case "", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("state.backend %q is not file, sqlite or postgres", c.State.Backend)
	}
	if c.State.Backend == "sqlite" && c.State.SQLitePath == "" {
		return fmt.Errorf("state.backend sqlite needs state.sqlite_path")
	}
	if c.State.Backend == "postgres" && c.State.PostgresDSN == "" {
		return fmt.Errorf("state.backend postgres needs ESTUDAI_POSTGRES_DSN")
	}
	switch c.Provider.Name {
	case "gemini", "openai":
	default:
		return fmt.Errorf("provider.name %q is not gemini or openai", c.Provider.Name)
	}
	if c.Agents.Default == "" {
		return fmt.Errorf("agents.default is required")
	}
	for i, b := range c.Agents.Bindings {
		if b.Agent == "" {
			return fmt.Errorf("agents.bindings[%d]: agent is required", i)
		}
	}
	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("tracing.protocol %q is not grpc or http", c.Tracing.Protocol)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing is enabled but has no otlp endpoint")
	}
	gron := gronx.New()
	for i, r := range c.Reminders {
		if !gron.IsValid(r.Schedule) {
			return fmt.Errorf("reminders[%d]: schedule %q is not a valid cron expression", i, r.Schedule)
		}
		if r.Command == "" {
			return fmt.Errorf("reminders[%d]: command is required", i)
		}
		if r.UserID == "" {
			return fmt.Errorf("reminders[%d]: user_id is required", i)
		}
		switch r.Channel {
		case "telegram":
			if r.ChatID == 0 {
				return fmt.Errorf("reminders[%d]: telegram reminders need chat_id", i)
			}
		case "discord":
			if r.ChatID == 0 {
				return fmt.Errorf("reminders[%d]: discord reminders need chat_id", i)
			}
		case "":
			return fmt.Errorf("reminders[%d]: channel is required", i)
		}
	}
	return nil
}
