package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/presenter"
)

func init() {
	viper.SetEnvPrefix("A2A")
	viper.AutomaticEnv()
}

var rootCmd = &cobra.Command{
	Use:   "a2a",
	Short: "Agent-to-agent calling service",
	Long: `a2a runs the agent-to-agent calling service: it issues and validates
peer credentials, serves the call endpoints, and keeps the durable
conversation history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				return err
			}
		}
		if format, err := cmd.Flags().GetString("log-format"); err == nil && format != "" {
			logger.SetLogFormat(format)
		}
		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}
		return nil
	},
	// Running the bare binary starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, text, fmt)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
