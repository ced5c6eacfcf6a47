package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/board-assistant/server"
	"github.com/tailored-agentic-units/board-assistant/session"
)

var (
	sessionsServer string
	sessionsUser   string
	sessionsBoard  string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your sessions on a board",
	RunE:  runSessionsList,
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use <session-id>",
	Short: "Make a session the board's current session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsUse,
}

func init() {
	f := sessionsCmd.PersistentFlags()
	f.StringVar(&sessionsServer, "server", "http://localhost:8080", "Base URL of a running server")
	f.StringVar(&sessionsUser, "user", "", "User id (required)")
	f.StringVar(&sessionsBoard, "board", "demo", "Board id")
	_ = sessionsCmd.MarkPersistentFlagRequired("user")

	sessionsCmd.AddCommand(sessionsUseCmd)
}

func sessionsRequest(cmd *cobra.Command, method, path string) (*http.Response, error) {
	url := strings.TrimRight(sessionsServer, "/") + path
	req, err := http.NewRequestWithContext(cmd.Context(), method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(server.UserHeader, sessionsUser)
	return http.DefaultClient.Do(req)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	resp, err := sessionsRequest(cmd, http.MethodGet, "/boards/"+sessionsBoard+"/sessions")
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	var body struct {
		Sessions []session.Summary `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode sessions: %w", err)
	}

	if len(body.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CURRENT\tID\tMESSAGES\tUPDATED")
	for _, s := range body.Sessions {
		marker := ""
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", marker, s.ID, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runSessionsUse(cmd *cobra.Command, args []string) error {
	resp, err := sessionsRequest(cmd, http.MethodPut, "/boards/"+sessionsBoard+"/sessions/"+args[0]+"/current")
	if err != nil {
		return fmt.Errorf("failed to switch session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current session: %s\n", args[0])
	return nil
}
