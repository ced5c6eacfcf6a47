package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
	"github.com/tailored-agentic-units/board-assistant/stream"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Model     string `json:"model,omitempty"`
}

type sessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

type messagesResponse struct {
	SessionID string            `json:"sessionId"`
	Messages  []session.Message `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.svc.Kernel().Models().List()})
}

// handleChat validates the turn, then opens the event stream. Input errors
// are plain JSON responses; once the stream is open every outcome is an
// event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFrom(ctx)

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadBody, err))
		return
	}

	turn, err := s.svc.Prepare(ctx, chat.Request{
		UserID:    userID,
		BoardID:   r.PathValue("boardID"),
		SessionID: body.SessionID,
		Message:   body.Message,
		Model:     body.Model,
	})
	if err != nil {
		s.reject(w, r, err)
		return
	}

	sw := stream.NewWriter(w)
	if err := sw.Start(); err != nil {
		observability.Logger(ctx, s.logger).Error("failed to open stream", "error", err)
		return
	}
	turn.Stream(ctx, sw)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())

	list, err := s.svc.ListSessions(r.Context(), r.PathValue("boardID"), userID)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: list})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())

	sess, err := s.svc.CreateSession(r.Context(), r.PathValue("boardID"), userID)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())

	err := s.svc.SetCurrent(r.Context(), r.PathValue("boardID"), userID, r.PathValue("sessionID"))
	if err != nil {
		s.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	sessionID := r.PathValue("sessionID")

	msgs, err := s.svc.Messages(r.Context(), userID, sessionID)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{SessionID: sessionID, Messages: msgs})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		observability.Logger(r.Context(), s.logger).Error("request failed", "error", err)
	}
	writeError(w, status, err)
}
