package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

type setTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// handleSetTyping is the HTTP path for typing flags; websocket clients send
// them over the socket instead. Last write wins, nothing is persisted.
func (s *Server) handleSetTyping(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	convID := chi.URLParam(r, "conversationID")

	var req setTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}

	conv, err := s.store.GetConversation(r.Context(), convID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !conv.HasParticipant(claims.UserID) {
		s.writeError(w, errs.NotParticipant("not a participant of this conversation"))
		return
	}

	st := model.TypingState{ConversationID: convID, UserID: claims.UserID, IsTyping: req.IsTyping}
	if err := s.typing.SetTyping(r.Context(), st); err != nil {
		s.writeError(w, errs.StoreUnavailable("set typing", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.claims(w, r); !ok {
		return
	}
	users, err := s.typing.OnlineUsers(r.Context())
	if err != nil {
		s.writeError(w, errs.StoreUnavailable("online users", err))
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}
