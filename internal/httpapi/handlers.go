package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MimeLyc/presentation-params/internal/apperr"
	"github.com/MimeLyc/presentation-params/internal/params"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

type saveResponse struct {
	Status  string `json:"status"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleSaveParams(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := params.DecodeSnapshot(body)
	if err != nil {
		log.Warn("Rejected save from %s: %v", r.RemoteAddr, err)
		writeError(w, apperr.HTTPStatus(err), err.Error())
		return
	}

	if _, err := s.store.Apply(snap); err != nil {
		log.Error("Saving params for %q failed: %v", snap.ImageDir, err)
		writeError(w, apperr.HTTPStatus(err), err.Error())
		return
	}

	if session := r.Header.Get("X-Session-Id"); session != "" {
		log.Info("Saved %d items for %q (session %s)", len(snap.Items), snap.ImageDir, session)
	} else {
		log.Info("Saved %d items for %q", len(snap.Items), snap.ImageDir)
	}
	writeJSON(w, http.StatusOK, saveResponse{Status: "ok", File: s.store.FileName()})
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	s.setCORS(w)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.allowOrigin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, saveResponse{
		Status:  "error",
		Message: msg,
	})
}
