package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"

	"tangled.org/arabica.social/sanctions/internal/metrics"
	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// parseModerationRequest reads a moderation request from a JSON or form body.
func parseModerationRequest(r *http.Request) (moderation.Request, error) {
	var req moderation.Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Action = r.PostFormValue("action")
	req.BanDate = r.PostFormValue("banDate")
	req.Reason = r.PostFormValue("reason")
	req.ReportID = r.PostFormValue("report")
	return req, nil
}

// HandleModerate handles POST /admin/moderation
func (h *Handler) HandleModerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actor(w, r)
	if !ok {
		return
	}

	req, err := parseModerationRequest(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	label := metrics.ActionLabel(req.Action)
	out, err := h.moderation.Moderate(r.Context(), actor, req)
	if err != nil {
		h.writeModerationError(w, actor, label, err)
		return
	}

	metrics.ModerationActionsTotal.WithLabelValues(label, metrics.OutcomeCommitted).Inc()
	writeMessage(w, http.StatusOK, out.Message)
}

func (h *Handler) writeModerationError(w http.ResponseWriter, actor moderation.Actor, label string, err error) {
	var rl *moderation.RateLimitError

	switch {
	case errors.Is(err, moderation.ErrInsufficientLevel):
		log.Warn().Str("actor", actor.ID).Int("level", actor.PermissionLevel).Msg("Denied: insufficient permissions")
		metrics.ModerationActionsTotal.WithLabelValues(label, metrics.OutcomeRejected).Inc()
		writeMessage(w, http.StatusForbidden, "Permission denied")

	case errors.As(err, &rl):
		metrics.ModerationActionsTotal.WithLabelValues(label, metrics.OutcomeRateLimited).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		writeMessage(w, http.StatusTooManyRequests, "Too many moderation actions, try again later")

	default:
		if fields := moderation.FieldErrors(err); fields != nil {
			metrics.ModerationActionsTotal.WithLabelValues(label, metrics.OutcomeRejected).Inc()
			for field := range fields {
				metrics.ModerationRejectionsTotal.WithLabelValues(field).Inc()
			}
			writeJSON(w, http.StatusBadRequest, fieldErrorsResponse{FieldErrors: fields})
			return
		}

		log.Error().Err(err).Str("actor", actor.ID).Msg("Moderation failed")
		metrics.ModerationActionsTotal.WithLabelValues(label, metrics.OutcomeError).Inc()
		writeMessage(w, http.StatusInternalServerError, "Failed to apply moderation action")
	}
}

type prefillResponse struct {
	Form   moderation.Request `json:"form"`
	Query  string             `json:"query"`
	Report *moderation.Report `json:"report,omitempty"`
}

// HandleModerationForm handles GET /admin/moderation[?report=id], returning
// the form pre-filled from a report.
func (h *Handler) HandleModerationForm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actor(w, r)
	if !ok {
		return
	}

	prefill, err := h.moderation.Prefill(r.Context(), actor, r.URL.Query().Get("report"))
	switch {
	case errors.Is(err, moderation.ErrInsufficientLevel):
		writeMessage(w, http.StatusForbidden, "Permission denied")
		return
	case errors.Is(err, moderation.ErrReportNotFound):
		writeMessage(w, http.StatusBadRequest, "Invalid report id")
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to load report")
		writeMessage(w, http.StatusInternalServerError, "Failed to load report")
		return
	}

	values, err := query.Values(prefill.Form)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode pre-filled form")
		writeMessage(w, http.StatusInternalServerError, "Failed to load report")
		return
	}

	if prefill.Report != nil {
		metrics.ReportPrefillsTotal.Inc()
	}
	writeJSON(w, http.StatusOK, prefillResponse{Form: prefill.Form, Query: values.Encode(), Report: prefill.Report})
}

// HandleSanctionHistory handles GET /admin/moderation/{username}/sanctions
func (h *Handler) HandleSanctionHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actor(w, r)
	if !ok {
		return
	}

	username := r.PathValue("username")
	sanctions, err := h.moderation.History(r.Context(), actor, username)
	switch {
	case errors.Is(err, moderation.ErrInsufficientLevel):
		writeMessage(w, http.StatusForbidden, "Permission denied")
		return
	case errors.Is(err, moderation.ErrTargetNotFound):
		writeMessage(w, http.StatusNotFound, "User does not exist")
		return
	case err != nil:
		log.Error().Err(err).Str("username", username).Msg("Failed to list sanctions")
		writeMessage(w, http.StatusInternalServerError, "Failed to list sanctions")
		return
	}

	if sanctions == nil {
		sanctions = []moderation.Sanction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":  username,
		"sanctions": sanctions,
	})
}
