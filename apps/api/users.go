package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

type loginRequest struct {
	Credential string `json:"credential"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// handleLogin exchanges an identity-provider credential for a service
// session. The profile is upserted on every sign-in, so a user exists from
// first authentication onward.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}
	if req.Credential == "" {
		s.writeError(w, errs.InvalidArg("credential is required"))
		return
	}

	profile, err := s.identity.Verify(r.Context(), req.Credential)
	if err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.store.UpsertUser(r.Context(), profile.UserID, profile.DisplayName, profile.Email, profile.AvatarURL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	token, err := s.sessions.Generate(user.UserID)
	if err != nil {
		s.writeError(w, errs.Wrap(errs.CodeUnknown, "generate session", err))
		return
	}

	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.InvalidArg("invalid request body"))
		return
	}
	user, err := s.store.UpdateProfile(r.Context(), claims.UserID, req.Username, req.Bio, req.AvatarURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

// handleLookupUser finds a user by email, the add-chat flow's entry point.
func (s *Server) handleLookupUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.claims(w, r); !ok {
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		s.writeError(w, errs.InvalidArg("email query param is required"))
		return
	}
	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}
