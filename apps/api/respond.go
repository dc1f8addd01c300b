package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chat-sync/pkg/auth"
	"github.com/mahaj/chat-sync/pkg/errs"
)

type errorResponse struct {
	Code  errs.Code `json:"code"`
	Error string    `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Code: errs.CodeOf(err), Error: err.Error()})
}

// claims pulls the authenticated user out of the request context; the auth
// middleware guarantees it is present on protected routes.
func (s *Server) claims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		s.writeError(w, errs.AuthenticationFailed("missing session"))
		return nil, false
	}
	return claims, true
}
