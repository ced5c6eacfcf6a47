package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/board-assistant/board"
	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/session"
)

var (
	errMissingUser = errors.New("missing " + UserHeader + " header")
	errBadBody     = errors.New("invalid request body")
)

type errorResponse struct {
	Error string `json:"error"`
}

// Status maps an input error to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, errMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrUnknownModel),
		errors.Is(err, kernel.ErrEmptyUtterance),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAccessDenied),
		errors.Is(err, board.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, board.ErrBoardNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code maps an input error to its Connect code.
func Code(err error) connect.Code {
	switch Status(err) {
	case http.StatusBadRequest:
		return connect.CodeInvalidArgument
	case http.StatusForbidden:
		return connect.CodePermissionDenied
	case http.StatusNotFound:
		return connect.CodeNotFound
	case http.StatusUnauthorized:
		return connect.CodeUnauthenticated
	default:
		return connect.CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
