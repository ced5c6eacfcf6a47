package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/board-assistant/board"
	"github.com/tailored-agentic-units/board-assistant/mcpbridge"
	"github.com/tailored-agentic-units/board-assistant/tools"
)

var (
	mcpUser  string
	mcpBoard string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the board tools of one user and board over MCP stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.boards.Access(cmd.Context(), mcpBoard, mcpUser); err != nil {
			return err
		}

		reg, err := board.Toolset(a.boards)(tools.Principal{UserID: mcpUser, BoardID: mcpBoard})
		if err != nil {
			return fmt.Errorf("failed to build tools: %w", err)
		}
		return mcpbridge.ServeStdio(reg)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpUser, "user", "", "User id the tools act for (required)")
	mcpCmd.Flags().StringVar(&mcpBoard, "board", "demo", "Board id the tools act on")
	_ = mcpCmd.MarkFlagRequired("user")
}
