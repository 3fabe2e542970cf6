package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/estudolab/estudai/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("estudai doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — env-only mode)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Provider:")
	checkProvider(cfg.Provider.Name, cfg.Provider.APIKey)
	if cfg.Provider.Model != "" {
		fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Model)
	}

	fmt.Println()
	fmt.Println("  State:")
	checkState(cfg)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Telegram.Enabled, cfg.Telegram.Token != "")
	checkChannel("Discord", cfg.Discord.Enabled, cfg.Discord.Token != "")
	checkChannel("WebSocket", cfg.WS.Enabled, true)
	checkChannel("Webhook", true, true)

	fmt.Println()
	fmt.Printf("  Reminders: %d configured\n", len(cfg.Reminders))

	if cfg.Tracing.Enabled {
		fmt.Printf("  Tracing:   OTLP %s (%s)\n", cfg.Tracing.Endpoint, cfg.Tracing.Protocol)
	} else {
		fmt.Println("  Tracing:   disabled")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (no API key — study commands will apologize)\n", name+":")
		return
	}
	masked := apiKey
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkState(cfg *config.Config) {
	switch cfg.State.Backend {
	case "postgres":
		fmt.Printf("    %-12s postgres\n", "Backend:")
		db, err := sql.Open("pgx", cfg.State.PostgresDSN)
		if err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		fmt.Printf("    %-12s OK\n", "Status:")
		var exists bool
		err = db.QueryRowContext(pingCtx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'user_states')").Scan(&exists)
		if err != nil || !exists {
			fmt.Printf("    %-12s user_states missing (run: estudai migrate up)\n", "Schema:")
		} else {
			fmt.Printf("    %-12s user_states present\n", "Schema:")
		}
	case "sqlite":
		path := config.ExpandHome(cfg.State.SQLitePath)
		fmt.Printf("    %-12s sqlite (%s)\n", "Backend:", path)
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			fmt.Printf("    %-12s parent directory missing (created on first run)\n", "Status:")
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	default:
		dir := config.ExpandHome(cfg.State.Dir)
		fmt.Printf("    %-12s file (%s)\n", "Backend:", dir)
		if _, err := os.Stat(dir); err != nil {
			fmt.Printf("    %-12s directory missing (created on first run)\n", "Status:")
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	}
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}
