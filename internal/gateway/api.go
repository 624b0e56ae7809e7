// ABOUTME: HTTP API handlers exposing connected studios and the history log.
// ABOUTME: Provides GET /api/studios and GET /api/history for the CLI and dashboards.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/studio-gateway/internal/store"
)

// StudioResponse is one entry of GET /api/studios.
type StudioResponse struct {
	StudioID     string `json:"studio_id"`
	PlaceID      uint64 `json:"place_id"`
	PlaceName    string `json:"place_name"`
	GameID       uint64 `json:"game_id"`
	JobID        string `json:"job_id"`
	PlaceVersion uint64 `json:"place_version"`
	CreatorID    uint64 `json:"creator_id"`
	CreatorType  string `json:"creator_type"`
	Transport    string `json:"transport"`
	ConnectedAt  string `json:"connected_at"`
	LastSeen     string `json:"last_seen"`
}

// handleListStudios handles GET /api/studios requests.
// It returns a JSON array of connected studios in connect order.
func (g *Gateway) handleListStudios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	infos := g.manager.ListStudios()
	response := make([]StudioResponse, 0, len(infos))
	for _, info := range infos {
		entry := StudioResponse{
			StudioID:     info.ID.String(),
			PlaceID:      info.PlaceID,
			PlaceName:    info.PlaceName,
			GameID:       info.GameID,
			JobID:        info.JobID,
			PlaceVersion: info.PlaceVersion,
			CreatorID:    info.CreatorID,
			CreatorType:  info.CreatorType,
			Transport:    string(info.Transport),
			ConnectedAt:  info.ConnectedAt.Format(time.RFC3339),
		}
		// The studio may disconnect between the listing and this lookup.
		if conn, ok := g.manager.Connection(info.ID); ok {
			entry.LastSeen = conn.LastSeen().UTC().Format(time.RFC3339)
		}
		response = append(response, entry)
	}

	g.sendJSON(w, http.StatusOK, response)
}

// handleHistory handles GET /api/history requests.
// Supports ?limit=N (default 50, max 1000), ?kind=K and ?studio_id=X. Entries
// are returned newest first.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "history log is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.Filter{
		Kind:     store.Kind(q.Get("kind")),
		StudioID: q.Get("studio_id"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = parsed
	}

	entries, err := g.store.ListHistory(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list history", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, entries)
}

// handleHealth returns 200 OK whenever the server is up.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one studio is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n := g.manager.Count()
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no studios connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready (" + strconv.Itoa(n) + " studios)"))
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
