package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/obs"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	convID := chi.URLParam(r, "conversationID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}

	msgs, err := s.store.ListMessages(r.Context(), convID, claims.UserID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

type appendMessageRequest struct {
	Content     string            `json:"content"`
	ReplyTo     *model.MessageRef `json:"reply_to,omitempty"`
	ClientToken string            `json:"client_token,omitempty"`
}

// handleAppendMessage commits a message and fans the change out: one diff for
// message-log subscribers, one for chat-list subscribers carrying the updated
// lastMessage projection.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	convID := chi.URLParam(r, "conversationID")

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}

	msg, err := s.store.AppendMessage(r.Context(), convID, claims.UserID, req.Content, req.ReplyTo, req.ClientToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	obs.MessagesAppended.Inc()

	conv, err := s.store.GetConversation(r.Context(), convID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), &model.Event{
		Kind:           model.EventMessageNew,
		ConversationID: convID,
		Participants:   conv.Participants(),
		Message:        msg,
	})
	s.publish(r.Context(), &model.Event{
		Kind:           model.EventConversation,
		ConversationID: convID,
		Participants:   conv.Participants(),
		Conversation:   conv,
	})

	s.writeJSON(w, http.StatusCreated, msg)
}

type markReadRequest struct {
	MessageID int64 `json:"message_id"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	convID := chi.URLParam(r, "conversationID")

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}

	msg, err := s.store.MarkRead(r.Context(), convID, req.MessageID, claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conv, err := s.store.GetConversation(r.Context(), convID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.ResetUnread(r.Context(), claims.UserID, conv.OtherParticipant(claims.UserID)); err != nil {
		s.logger.Error("reset unread failed", "conversation", convID, "error", err)
	}

	s.publish(r.Context(), &model.Event{
		Kind:           model.EventMessageRead,
		ConversationID: convID,
		Participants:   conv.Participants(),
		Message:        msg,
	})
	s.publish(r.Context(), &model.Event{
		Kind:           model.EventConversation,
		ConversationID: convID,
		Participants:   conv.Participants(),
		Conversation:   conv,
	})

	s.writeJSON(w, http.StatusOK, msg)
}
