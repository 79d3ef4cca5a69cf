package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"tangled.org/arabica.social/sanctions/internal/middleware"
	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// SanctionCounter reports how many targets have an active sanction.
type SanctionCounter interface {
	CountActiveSanctions(ctx context.Context) (int, error)
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	moderation *moderation.Service
	sanctions  SanctionCounter
}

// NewHandler creates a new Handler with all required dependencies.
func NewHandler(svc *moderation.Service, sanctions SanctionCounter) *Handler {
	return &Handler{moderation: svc, sanctions: sanctions}
}

// actor returns the authenticated moderator, writing 401 if there is none.
func actor(w http.ResponseWriter, r *http.Request) (moderation.Actor, bool) {
	identity, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return moderation.Actor{}, false
	}
	return moderation.Actor{Identity: identity, ClientAddr: middleware.GetClientIP(r)}, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type fieldErrorsResponse struct {
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// HandleHealth reports whether the store answers.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sanctions.CountActiveSanctions(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
