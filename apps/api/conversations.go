package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}

	list, err := s.store.ListConversations(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	for i := range list {
		other := list[i].OtherParticipant(claims.UserID)
		if count, err := s.store.UnreadCount(r.Context(), claims.UserID, other); err == nil {
			list[i].UnreadCount = count
		}
	}

	s.writeJSON(w, http.StatusOK, list)
}

type createConversationRequest struct {
	PartnerID    string `json:"partner_id"`
	PartnerEmail string `json:"partner_email"`
}

// handleCreateConversation opens (or returns) the conversation with a
// partner, addressed by id or by email. Safe to retry: both participants
// racing here converge on the same record.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}

	partnerID := req.PartnerID
	if partnerID == "" {
		if req.PartnerEmail == "" {
			s.writeError(w, errs.InvalidArg("partner_id or partner_email is required"))
			return
		}
		partner, err := s.store.GetUserByEmail(r.Context(), req.PartnerEmail)
		if err != nil {
			s.writeError(w, err)
			return
		}
		partnerID = partner.UserID
	}

	conv, err := s.store.FindOrCreateConversation(r.Context(), claims.UserID, partnerID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), &model.Event{
		Kind:           model.EventConversation,
		ConversationID: conv.ConversationID,
		Participants:   conv.Participants(),
		Conversation:   conv,
	})

	s.writeJSON(w, http.StatusOK, conv)
}
