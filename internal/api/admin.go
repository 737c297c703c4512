package api

import (
	"net/http"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/monitor"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/version"
)

// AttemptsHandler returns paginated provider attempts.
func AttemptsHandler(m *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 50)
		if pageSize > 500 {
			pageSize = 500
		}
		attempts, total, err := m.GetAttemptsWithPagination(r.Context(), page, pageSize, r.URL.Query().Get("search"))
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("Failed to list provider attempts")
			writeError(w, http.StatusInternalServerError, "Failed to fetch provider attempts")
			return
		}
		writeData(w, map[string]any{
			"attempts":  attempts,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

// StatsHandler returns aggregated attempt counters.
func StatsHandler(m *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, m.GetStats())
	}
}

// ClearAttemptsHandler drops all recorded attempts.
func ClearAttemptsHandler(m *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Clear(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear provider attempts")
			return
		}
		writeData(w, map[string]any{"cleared": true})
	}
}

// ToggleMonitorHandler enables or disables attempt recording.
func ToggleMonitorHandler(m *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		m.SetEnabled(req.Enabled)
		writeData(w, map[string]any{"enabled": m.IsEnabled()})
	}
}

type providerStatus struct {
	Name      string       `json:"name"`
	Kind      catalog.Kind `json:"kind"`
	Model     string       `json:"model,omitempty"`
	Enabled   bool         `json:"enabled"`
	Preferred bool         `json:"preferred"`
	TimeoutMs int64        `json:"timeout_ms"`
}

// ProvidersHandler lists the primary and backups in attempt order. Disabled
// backups follow the candidates. Credentials are never exposed.
func ProvidersHandler(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := []providerStatus{toStatus(cat.Primary())}
		seen := map[string]bool{}
		for _, d := range cat.Candidates() {
			seen[d.Name] = true
			list = append(list, toStatus(d))
		}
		for _, d := range cat.Backups() {
			if !seen[d.Name] {
				list = append(list, toStatus(d))
			}
		}
		writeData(w, map[string]any{
			"providers":        list,
			"preferred_backup": cat.PreferredSelector(),
		})
	}
}

func toStatus(d catalog.Descriptor) providerStatus {
	return providerStatus{
		Name:      d.Name,
		Kind:      d.Kind,
		Model:     d.Model,
		Enabled:   d.Enabled,
		Preferred: d.Preferred,
		TimeoutMs: d.Timeout.Milliseconds(),
	}
}

// HealthHandler reports liveness and build info.
func HealthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.Get(),
			"uptime":  time.Since(started).Round(time.Second).String(),
		})
	}
}
