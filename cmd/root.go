package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/estudolab/estudai/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/estudolab/estudai/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "estudai",
	Short: "estudai — assistente de estudos",
	Long: "estudai: study assistant that routes Telegram, Discord, WebSocket and webhook " +
		"messages through a capability-based agent layer for summaries, quizzes and " +
		"per-student progress.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $ESTUDAI_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(channelsCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("estudai %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	return config.Path(cfgFile)
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
