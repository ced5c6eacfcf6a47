package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/stream"
)

const (
	// ChatServiceName is the fully-qualified name of the chat RPC service.
	ChatServiceName = "boardassist.v1.ChatService"
	// ChatProcedure is the server-streaming chat procedure.
	ChatProcedure = "/" + ChatServiceName + "/Chat"
)

// ChatRequest is the Connect chat request. The user comes from the
// X-User-ID header, as on the SSE endpoint.
type ChatRequest struct {
	BoardID   string `json:"boardId"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
}

// StreamEvent is one streamed event: its wire type and the same JSON
// payload the SSE endpoint sends.
type StreamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode converts e back into a kernel event.
func (e *StreamEvent) Decode() (kernel.Event, error) {
	return stream.Unmarshal(e.Event, e.Data)
}

// jsonCodec is the Connect "json" codec for plain Go structs. Protobuf
// messages still go through protojson.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

// NewChatHandler returns the mount path and handler of the Connect chat
// service.
func NewChatHandler(svc *chat.Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ChatProcedure, connect.NewServerStreamHandler(ChatProcedure,
		func(ctx context.Context, req *connect.Request[ChatRequest], out *connect.ServerStream[StreamEvent]) error {
			return serveChat(ctx, svc, req, out)
		},
		opts...,
	))
	return "/" + ChatServiceName + "/", mux
}

func serveChat(ctx context.Context, svc *chat.Service, req *connect.Request[ChatRequest], out *connect.ServerStream[StreamEvent]) error {
	userID, ok := UserFrom(ctx)
	if !ok {
		userID = strings.TrimSpace(req.Header().Get(UserHeader))
	}
	if userID == "" {
		return connect.NewError(connect.CodeUnauthenticated, errMissingUser)
	}

	turn, err := svc.Prepare(ctx, chat.Request{
		UserID:    userID,
		BoardID:   req.Msg.BoardID,
		SessionID: req.Msg.SessionID,
		Message:   req.Msg.Message,
		Model:     req.Msg.Model,
	})
	if err != nil {
		return connect.NewError(Code(err), err)
	}

	turn.Stream(ctx, kernel.SinkFunc(func(_ context.Context, e kernel.Event) error {
		data, err := stream.Marshal(e)
		if err != nil {
			return err
		}
		return out.Send(&StreamEvent{Event: string(e.Type), Data: data})
	}))
	return nil
}

// ChatClient calls the Connect chat service.
type ChatClient struct {
	chat *connect.Client[ChatRequest, StreamEvent]
}

// NewChatClient creates a client for the server at baseURL.
func NewChatClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ChatClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &ChatClient{
		chat: connect.NewClient[ChatRequest, StreamEvent](httpClient, strings.TrimRight(baseURL, "/")+ChatProcedure, opts...),
	}
}

// Chat starts a turn and returns its event stream.
func (c *ChatClient) Chat(ctx context.Context, userID string, msg ChatRequest) (*connect.ServerStreamForClient[StreamEvent], error) {
	req := connect.NewRequest(&msg)
	req.Header().Set(UserHeader, userID)

	res, err := c.chat.CallServerStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat call failed: %w", err)
	}
	return res, nil
}
