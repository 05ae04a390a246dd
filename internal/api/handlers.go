package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/obenan/reviewbridge/internal/models"
)

// healthHandler reports service liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// sessionHandler returns the stored session for a user identifier. It is
// an operator inspection endpoint; the session record includes the audit
// message log.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(userID)
	if err != nil {
		slog.Warn("Server.sessionHandler: invalid user identifier", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sess, err := s.store.GetSession(canonical)
	if errors.Is(err, models.ErrSessionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("session not found"))
		return
	}
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "userID", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}
