package cmd

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/estudolab/estudai/internal/agents/estudos"
	"github.com/estudolab/estudai/internal/config"
)

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Show agents, capabilities and routing bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			agent := estudos.New(nil, nil)
			fmt.Printf("Default agent: %s\n\n", cfg.Agents.Default)

			printTable([][]string{
				{"AGENT", "CAPABILITIES"},
				{agent.ID(), strings.Join(agent.Capabilities(), ", ")},
			})

			fmt.Println()
			if len(cfg.Agents.Bindings) == 0 {
				fmt.Println("No explicit bindings; everything falls through to the default agent.")
				return nil
			}
			rows := [][]string{{"COMMAND", "CHANNEL", "AGENT"}}
			for _, b := range cfg.Agents.Bindings {
				rows = append(rows, []string{
					orAny(b.Match.Command),
					orAny(b.Match.Channel),
					b.Agent,
				})
			}
			fmt.Println("Bindings (first match wins):")
			printTable(rows)
			return nil
		},
	}
}

func channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Show configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			masked := cfg.MaskedCopy()

			rows := [][]string{{"CHANNEL", "ENABLED", "DETAILS"}}
			rows = append(rows, []string{"telegram", yesNo(masked.Telegram.Enabled),
				telegramDetails(masked)})
			rows = append(rows, []string{"discord", yesNo(masked.Discord.Enabled),
				tokenDetail(masked.Discord.Token)})
			rows = append(rows, []string{"ws", yesNo(masked.WS.Enabled), "GET /ws"})
			rows = append(rows, []string{"webhook", "yes", "POST /webhook/n8n"})
			printTable(rows)
			return nil
		},
	}
}

func telegramDetails(cfg *config.Config) string {
	if cfg.Telegram.Token == "" {
		return "no token"
	}
	mode := cfg.Telegram.Mode
	if mode == "" {
		mode = "polling"
	}
	detail := fmt.Sprintf("mode %s, token %s", mode, cfg.Telegram.Token)
	if len(cfg.Telegram.AllowFrom) > 0 {
		detail += fmt.Sprintf(", allow %s", strings.Join(cfg.Telegram.AllowFrom, " "))
	}
	return detail
}

func tokenDetail(token string) string {
	if token == "" {
		return "no token"
	}
	return "token " + token
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orAny(v string) string {
	if v == "" {
		return "*"
	}
	return v
}

// printTable renders rows with rune-aware column padding.
func printTable(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]+2))
		}
		fmt.Println(strings.TrimRight(b.String(), " "))
	}
}
