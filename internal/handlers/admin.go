package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tangled.org/arabica.social/sanctions/internal/metrics"
	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// HandleAuditLog handles GET /admin/audit?limit=N
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := actor(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.moderation.AuditLog(r.Context(), actor, limit)
	switch {
	case errors.Is(err, moderation.ErrInsufficientLevel):
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to list audit log")
		writeMessage(w, http.StatusInternalServerError, "Failed to list audit log")
		return
	}

	if entries == nil {
		entries = []moderation.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// AdminStats is the payload of GET /admin/stats.
type AdminStats struct {
	ActiveSanctions int                           `json:"active_sanctions"`
	StoreUp         bool                          `json:"store_up"`
	Actions         map[string]map[string]float64 `json:"actions"`
	Rejections      map[string]float64            `json:"rejections"`
	ReportPrefills  float64                       `json:"report_prefills"`
}

var (
	statOutcomes = []string{metrics.OutcomeCommitted, metrics.OutcomeRejected, metrics.OutcomeRateLimited, metrics.OutcomeError}
	statFields   = []string{moderation.FieldUsername, moderation.FieldAction, moderation.FieldBanDate, moderation.FieldReason}
)

// collectAdminStats gathers current statistics from the store and the
// process metrics.
func (h *Handler) collectAdminStats(ctx context.Context) (AdminStats, error) {
	stats := AdminStats{
		Actions:    make(map[string]map[string]float64),
		Rejections: make(map[string]float64),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := h.sanctions.CountActiveSanctions(ctx)
		if err != nil {
			return err
		}
		stats.ActiveSanctions = n
		return nil
	})
	g.Go(func() error {
		for _, a := range moderation.Actions() {
			action := a.String()
			byOutcome := make(map[string]float64)
			for _, outcome := range statOutcomes {
				byOutcome[outcome] = getCounterValue(metrics.ModerationActionsTotal.WithLabelValues(action, outcome))
			}
			stats.Actions[action] = byOutcome
		}
		for _, field := range statFields {
			stats.Rejections[field] = getCounterValue(metrics.ModerationRejectionsTotal.WithLabelValues(field))
		}
		stats.ReportPrefills = getCounterValue(metrics.ReportPrefillsTotal)
		stats.StoreUp = getGaugeValue(metrics.StoreUp) == 1
		return nil
	})

	if err := g.Wait(); err != nil {
		return AdminStats{}, err
	}
	return stats, nil
}

// getGaugeValue reads the current value of a prometheus.Gauge.
func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

// getCounterValue reads the current value of a prometheus.Counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

// HandleAdminStats handles GET /admin/stats
func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actor(w, r)
	if !ok {
		return
	}

	if actor.PermissionLevel < h.moderation.Policy().AuditLevel {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	}

	stats, err := h.collectAdminStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect admin stats")
		writeMessage(w, http.StatusInternalServerError, "Failed to collect stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
