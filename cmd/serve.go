package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/estudolab/estudai/internal/agents/estudos"
	"github.com/estudolab/estudai/internal/channels/discord"
	"github.com/estudolab/estudai/internal/channels/telegram"
	"github.com/estudolab/estudai/internal/channels/webhook"
	"github.com/estudolab/estudai/internal/channels/ws"
	"github.com/estudolab/estudai/internal/config"
	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/providers"
	"github.com/estudolab/estudai/internal/scheduler"
	"github.com/estudolab/estudai/internal/server"
	"github.com/estudolab/estudai/internal/state"
	"github.com/estudolab/estudai/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant (channels, router, HTTP server)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// First run: no config file and no provider key from the environment
	// either. Hand over to the wizard instead of starting mute.
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) && cfg.Provider.APIKey == "" {
		fmt.Println("No configuration found. Starting setup wizard...")
		fmt.Println()
		if err := runSetup(cfgPath); err != nil {
			fmt.Printf("setup failed: %v\n", err)
			os.Exit(1)
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			slog.Error("failed to load config after setup", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// OTLP export is a no-op unless configured.
	traceShutdown, err := tracing.Setup(ctx, cfg.Tracing.ToOptions())
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := traceShutdown(flushCtx); err != nil {
				slog.Debug("trace flush failed", "error", err)
			}
		}()
	}

	store, err := state.Open(cfg.State.ToOptions())
	if err != nil {
		slog.Error("failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// A missing key leaves provider nil; the agent answers with an apology
	// and logs its own warning.
	var provider providers.Provider
	if cfg.Provider.APIKey != "" {
		provider, err = providers.New(cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.APIKey)
		if err != nil {
			slog.Error("failed to build model provider", "error", err)
			os.Exit(1)
		}
	}

	policy := mcp.NewBindingPolicy(cfg.Agents.ToBindings(), cfg.Agents.Default)
	router := mcp.NewRouter(policy)
	router.RegisterAgent(estudos.New(provider, store))

	collector := tracing.NewCollector(64)
	router.OnDispatch(collector.Observe)

	var tg *telegram.Adapter
	if cfg.Telegram.Enabled {
		tg, err = telegram.New(telegram.Options{
			Token:     cfg.Telegram.Token,
			Mode:      cfg.Telegram.Mode,
			AllowFrom: cfg.Telegram.AllowFrom,
		})
		if err != nil {
			slog.Error("failed to build telegram adapter", "error", err)
			os.Exit(1)
		}
		router.RegisterAdapter(tg)
	}

	if cfg.Discord.Enabled {
		dc, err := discord.New(discord.Options{
			Token:     cfg.Discord.Token,
			AllowFrom: cfg.Discord.AllowFrom,
		})
		if err != nil {
			slog.Error("failed to build discord adapter", "error", err)
			os.Exit(1)
		}
		router.RegisterAdapter(dc)
	}

	wh := webhook.New()
	router.RegisterAdapter(wh)

	var wsAdapter *ws.Adapter
	if cfg.WS.Enabled {
		wsAdapter = ws.New()
		router.RegisterAdapter(wsAdapter)
	}

	// A failed adapter is unusable but the rest keep serving.
	if err := router.Initialize(ctx); err != nil {
		slog.Error("channel initialization incomplete", "error", err)
	}

	sched := scheduler.New(router, cfg.ReminderJobs())
	go sched.Run(ctx)

	srv := server.NewServer(cfg.Server, router, store)
	srv.SetWebhook(wh)
	srv.SetCollector(collector)
	if provider != nil {
		srv.SetProvider(provider)
	}
	if tg != nil {
		srv.SetTelegram(tg)
	}
	if wsAdapter != nil {
		srv.SetWS(wsAdapter)
	}

	// Hot reload: a config edit swaps the routing bindings and the
	// reminder set. Everything else (tokens, backends, listeners) still
	// needs a restart.
	lastHash := cfg.Hash()
	go func() {
		watchErr := config.Watch(ctx, cfgPath, func(next *config.Config) {
			if next.Hash() == lastHash {
				return
			}
			lastHash = next.Hash()
			policy.Update(next.Agents.ToBindings(), next.Agents.Default)
			sched.Update(next.ReminderJobs())
			slog.Info("bindings and reminders reloaded", "reminders", sched.Jobs())
		})
		if watchErr != nil {
			slog.Warn("config watcher unavailable", "error", watchErr)
		}
	}()

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			slog.Warn("router shutdown incomplete", "error", err)
		}

		cancel()
	}()

	slog.Info("estudai starting",
		"version", Version,
		"agents", router.AgentIDs(),
		"channels", router.AdapterIDs(),
		"state", cfg.State.Backend,
		"reminders", sched.Jobs(),
	)

	// Tailnet listener: hand over the full handler so both listeners serve
	// the same routes. Compiled via build tags: `go build -tags tsnet`.
	tsCleanup := initTailscale(ctx, cfg, srv.Handler())
	if tsCleanup != nil {
		defer tsCleanup()
	}
	if cfg.Tailscale.Hostname != "" && cfg.Server.Host == "0.0.0.0" {
		slog.Info("Tailscale enabled. Consider setting ESTUDAI_HOST=127.0.0.1 for localhost-only + tailnet access")
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
