package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/agent/mock"
	"github.com/tailored-agentic-units/board-assistant/board"
	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/server"
	"github.com/tailored-agentic-units/board-assistant/session"
	"github.com/tailored-agentic-units/board-assistant/stream"
)

const (
	alice   = "alice"
	boardID = "b1"
)

type harness struct {
	srv   *httptest.Server
	store session.Store
}

func newHarness(t *testing.T, turns ...mock.Turn) *harness {
	t.Helper()

	models := agent.NewRegistry()
	require.NoError(t, models.Put("mock", mock.New(turns...)))

	store := session.NewMemoryStore()
	cfg := kernel.DefaultConfig()
	k, err := kernel.New(&cfg,
		kernel.WithModels(models),
		kernel.WithStore(store),
		kernel.WithObserver(observability.NoOpObserver{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	boards := board.NewService(board.Board{ID: boardID, Columns: []string{"todo", "done"}, Members: []string{alice, "bob"}})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := chat.New(k,
		chat.WithToolset(board.Toolset(boards)),
		chat.WithAccess(boards),
		chat.WithLogger(logger),
	)

	srv := httptest.NewServer(server.New(svc, server.DefaultConfig(), logger).Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: store}
}

func (h *harness) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(server.UserHeader, user)
	}

	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIdentityRequired(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/boards/b1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestChat_SSE(t *testing.T) {
	h := newHarness(t,
		mock.Calls(protocol.NewToolCall("c1", "create_task", `{"title":"docs"}`)),
		mock.Text("Added ", "the task."),
	)

	resp := h.do(t, http.MethodPost, "/boards/b1/chat", alice, map[string]string{"message": "add docs"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	r := stream.NewReducer()
	r.Send("add docs")
	require.NoError(t, r.Consume(context.Background(), stream.NewReader(resp.Body)))

	require.True(t, r.Done(), "stream ended without done: %+v", r.Err())
	entries := r.Transcript()
	require.Len(t, entries, 4)
	assert.Equal(t, "create_task", entries[1].ToolCall.Name)
	assert.Equal(t, "c1", entries[2].ToolCallID)
	assert.Equal(t, "Added the task.", entries[3].Content)

	msgs, err := h.store.Messages(context.Background(), r.SessionID())
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChat_InputErrors(t *testing.T) {
	h := newHarness(t)

	foreign, err := h.store.CreateSession(context.Background(), boardID, "bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		user   string
		body   any
		status int
	}{
		{"empty message", "/boards/b1/chat", alice, map[string]string{"message": ""}, http.StatusBadRequest},
		{"bad body", "/boards/b1/chat", alice, "not an object", http.StatusBadRequest},
		{"unknown model", "/boards/b1/chat", alice, map[string]string{"message": "x", "model": "nope"}, http.StatusBadRequest},
		{"unknown board", "/boards/zz/chat", alice, map[string]string{"message": "x"}, http.StatusNotFound},
		{"not a member", "/boards/b1/chat", "mallory", map[string]string{"message": "x"}, http.StatusForbidden},
		{"missing session", "/boards/b1/chat", alice, map[string]string{"message": "x", "sessionId": "nope"}, http.StatusNotFound},
		{"foreign session", "/boards/b1/chat", alice, map[string]string{"message": "x", "sessionId": foreign.ID}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSessionAPIs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.do(t, http.MethodPost, "/boards/b1/sessions", alice, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[session.Session](t, resp)

	resp = h.do(t, http.MethodPost, "/boards/b1/sessions", alice, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decode[session.Session](t, resp)

	_, err := h.store.AppendMessages(ctx, first.ID,
		protocol.NewMessage(protocol.RoleSystem, "preamble"),
		protocol.NewMessage(protocol.RoleUser, "hello"),
	)
	require.NoError(t, err)

	resp = h.do(t, http.MethodGet, "/boards/b1/sessions", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Sessions []session.Summary `json:"sessions"`
	}](t, resp)
	require.Len(t, list.Sessions, 2)
	for _, s := range list.Sessions {
		assert.Equal(t, s.ID == second.ID, s.Current, s.ID)
		if s.ID == first.ID {
			assert.Equal(t, 2, s.MessageCount)
		}
	}

	resp = h.do(t, http.MethodPut, "/boards/b1/sessions/"+first.ID+"/current", alice, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	current, err := h.store.CurrentSession(ctx, boardID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	resp = h.do(t, http.MethodPut, "/boards/b1/sessions/"+first.ID+"/current", "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/sessions/"+first.ID+"/messages", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decode[struct {
		Messages []session.Message `json:"messages"`
	}](t, resp)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, "hello", msgs.Messages[0].Content)

	resp = h.do(t, http.MethodGet, "/sessions/missing/messages", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChat_Connect(t *testing.T) {
	h := newHarness(t, mock.Text("Hi ", "from Connect."))
	client := server.NewChatClient(h.srv.Client(), h.srv.URL)

	res, err := client.Chat(context.Background(), alice, server.ChatRequest{BoardID: boardID, Message: "hello"})
	require.NoError(t, err)
	defer res.Close()

	r := stream.NewReducer()
	for res.Receive() {
		e, err := res.Msg().Decode()
		require.NoError(t, err)
		r.Apply(e)
	}
	require.NoError(t, res.Err())

	require.True(t, r.Done())
	require.Len(t, r.Transcript(), 1)
	assert.Equal(t, "Hi from Connect.", r.Transcript()[0].Content)
	assert.NotEmpty(t, r.SessionID())
}

func TestChat_ConnectInputError(t *testing.T) {
	h := newHarness(t)
	client := server.NewChatClient(h.srv.Client(), h.srv.URL)

	res, err := client.Chat(context.Background(), alice, server.ChatRequest{BoardID: "zz", Message: "hello"})
	if err == nil {
		defer res.Close()
		for res.Receive() {
			t.Errorf("unexpected event %s", res.Msg().Event)
		}
		err = res.Err()
	}
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, server.Status(chat.ErrEmptyMessage))
	assert.Equal(t, http.StatusForbidden, server.Status(session.ErrAccessDenied))
	assert.Equal(t, http.StatusNotFound, server.Status(board.ErrBoardNotFound))
	assert.Equal(t, http.StatusInternalServerError, server.Status(io.ErrUnexpectedEOF))
	assert.Equal(t, connect.CodePermissionDenied, server.Code(board.ErrNotMember))
}
