// ABOUTME: HTTP API handlers for health checks and call ledger history.
// ABOUTME: Provides GET /health and GET /api/history for operators and tooling.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/bemfa-bridge/internal/store"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
}

// HistoryResponse is the JSON response for GET /api/history.
type HistoryResponse struct {
	Entries []*store.Entry `json:"entries"`
}

// handleHealth handles GET /health requests.
// It reports server version, uptime, and the number of live sessions.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:         "ok",
		Version:        g.version,
		UptimeSeconds:  int64(time.Since(g.startedAt).Seconds()),
		ActiveSessions: g.sessions.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleHistory handles GET /api/history requests.
// Returns recent ledger entries, optionally filtered by ?session_id=X
// and limited by ?limit=N.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")

	// Parse optional limit parameter (default 50, max 500)
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 500 {
			limit = 500
		}
	}

	entries, err := g.ledger.RecentEntries(r.Context(), sessionID, limit)
	if err != nil {
		g.logger.Error("failed to query ledger", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []*store.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{Entries: entries})
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
