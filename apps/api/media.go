package main

import (
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mahaj/chat-sync/pkg/errs"
)

const maxUploadBytes = 10 << 20 // 10 MiB

type uploadResponse struct {
	URL string `json:"url"`
}

// handleUpload stores media bytes (avatar or story image) in object storage
// and returns the durable URL. Retries are the caller's call: a blind retry
// may store the bytes twice under different paths but never corrupts state.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, errs.InvalidArg("invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, errs.InvalidArg("file field is required"))
		return
	}
	defer file.Close()

	path := claims.UserID + "/" + uuid.NewString() + filepath.Ext(header.Filename)
	url, err := s.uploader.Put(r.Context(), path, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}
