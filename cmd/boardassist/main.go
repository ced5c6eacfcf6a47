// Command boardassist serves the board assistant and talks to it.
//
//	boardassist serve --config config.yaml
//	boardassist chat --user alice --board demo "what is in progress?"
//	boardassist mcp --user alice --board demo
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/tailored-agentic-units/board-assistant/agent/mock"
	_ "github.com/tailored-agentic-units/board-assistant/agent/openai"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "boardassist",
	Short:         "Board assistant: a streaming, tool-calling chat agent for task boards",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML or JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")

	rootCmd.AddCommand(serveCmd, chatCmd, mcpCmd, sessionsCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
