package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/server"
	"github.com/tailored-agentic-units/board-assistant/stream"
)

var (
	chatServer    string
	chatUser      string
	chatBoard     string
	chatSession   string
	chatModel     string
	chatTransport string
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message and stream the answer",
	Long: `Sends a message to the board assistant and renders the streamed answer.

Without --server the assistant runs in process. With --server the message is
sent to a running "boardassist serve" over SSE (default) or Connect.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&chatServer, "server", "", "Base URL of a running server; empty runs in process")
	f.StringVar(&chatUser, "user", "", "User id (required)")
	f.StringVar(&chatBoard, "board", "demo", "Board id")
	f.StringVar(&chatSession, "session", "", "Session id; empty starts a new session")
	f.StringVar(&chatModel, "model", "", "Model name; empty uses the default")
	f.StringVar(&chatTransport, "transport", "sse", "Server transport: sse or connect")
	_ = chatCmd.MarkFlagRequired("user")
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	r := stream.NewReducer()
	r.OnEvent(render(cmd.OutOrStdout()))
	r.Send(message)

	var err error
	switch {
	case chatServer == "":
		err = chatLocal(ctx, r, message)
	case chatTransport == "connect":
		err = chatConnect(ctx, r, message)
	case chatTransport == "sse":
		err = chatSSE(ctx, r, message)
	default:
		return fmt.Errorf("unknown transport %q", chatTransport)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if e := r.Err(); e != nil {
		return fmt.Errorf("%s error: %s", e.Kind, e.Error)
	}
	if r.SessionID() != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", r.SessionID())
	}
	return nil
}

// render prints text as it streams and a line per tool call.
func render(w io.Writer) func(kernel.Event) {
	return func(e kernel.Event) {
		switch e.Type {
		case kernel.EventTextContent:
			fmt.Fprint(w, e.TextDelta)
		case kernel.EventToolCall:
			fmt.Fprintf(w, "\n→ %s %s\n", e.ToolCall.Name, e.ToolCall.Arguments)
		case kernel.EventToolResult:
			fmt.Fprintf(w, "← %s\n", e.ToolResult)
		}
	}
}

func chatLocal(ctx context.Context, r *stream.Reducer, message string) error {
	a, _, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.chat.Chat(ctx, chat.Request{
		UserID:    chatUser,
		BoardID:   chatBoard,
		SessionID: chatSession,
		Message:   message,
		Model:     chatModel,
	}, kernel.SinkFunc(func(_ context.Context, e kernel.Event) error {
		r.Apply(e)
		return nil
	}))
	return err
}

func chatSSE(ctx context.Context, r *stream.Reducer, message string) error {
	body, err := json.Marshal(map[string]string{
		"message":   message,
		"sessionId": chatSession,
		"model":     chatModel,
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(chatServer, "/") + "/boards/" + chatBoard + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(server.UserHeader, chatUser)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return r.Consume(ctx, stream.NewReader(resp.Body))
}

func chatConnect(ctx context.Context, r *stream.Reducer, message string) error {
	client := server.NewChatClient(http.DefaultClient, chatServer)

	res, err := client.Chat(ctx, chatUser, server.ChatRequest{
		BoardID:   chatBoard,
		SessionID: chatSession,
		Message:   message,
		Model:     chatModel,
	})
	if err != nil {
		return err
	}
	defer res.Close()

	for res.Receive() {
		e, err := res.Msg().Decode()
		if err != nil {
			return err
		}
		r.Apply(e)
		if r.Done() || r.Err() != nil {
			return nil
		}
	}
	return res.Err()
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
}
