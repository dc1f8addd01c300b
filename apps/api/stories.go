package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	stories, err := s.store.ListVisibleStories(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stories)
}

type publishStoryRequest struct {
	ImageURL string `json:"image_url"`
}

// handlePublishStory appends an image to the caller's active story post (or
// starts a new one) and fans the updated post out to everyone it is visible
// to.
func (s *Server) handlePublishStory(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}

	var req publishStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}

	post, err := s.store.PublishStory(r.Context(), claims.UserID, req.ImageURL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), &model.Event{
		Kind:    model.EventStory,
		OwnerID: claims.UserID,
		Story:   post,
	})

	s.writeJSON(w, http.StatusCreated, post)
}
