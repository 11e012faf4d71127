package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/server/pagination"
	"reddot-watch/collector/internal/server/storage"
)

const defaultLimit = 100
const maxLimit = 1000
const iso8601Format = time.RFC3339

// ItemsResponse is the body of the items endpoint.
type ItemsResponse struct {
	Items      []models.Item `json:"items"`
	NextCursor *string       `json:"next_cursor,omitempty"`
}

// RunsResponse is the body of the runs endpoint.
type RunsResponse struct {
	Runs []models.RunOutcome `json:"runs"`
}

// Handler serves the read-only collection API.
// The logger is taken from the request context.
type Handler struct {
	repo storage.Repository
}

// NewHandler creates a new handler instance.
func NewHandler(repo storage.Repository) *Handler {
	return &Handler{repo: repo}
}

// GetItems pages through stored items in collection order.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Processing items request")

	query := r.URL.Query()
	limit, ok := parseLimit(w, r, query.Get("limit"), defaultLimit)
	if !ok {
		return
	}

	sinceStr := query.Get("since")
	cursorStr := query.Get("cursor")

	var since *time.Time
	var cursor *pagination.Cursor

	if cursorStr != "" {
		c, err := pagination.Decode(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		cursor = &c
	} else if sinceStr != "" {
		parsedSince, err := time.Parse(iso8601Format, sinceStr)
		if err != nil {
			log.Warn().Err(err).Str("since", sinceStr).Msg("Invalid 'since' parameter format")
			http.Error(w, "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", http.StatusBadRequest)
			return
		}
		utcSince := parsedSince.UTC()
		since = &utcSince
	} else {
		log.Warn().Msg("Missing required parameter: 'since' or 'cursor'")
		http.Error(w, "Missing required parameter: 'since' or 'cursor'", http.StatusBadRequest)
		return
	}

	items, err := h.repo.FetchItems(r.Context(), limit+1, since, cursor) // Fetch one extra
	if err != nil {
		log.Error().Err(err).Str("cursor", cursorStr).Msg("Error fetching items from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursor *string
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		c := pagination.Cursor{CollectedAt: last.CollectedAt, ID: last.ID}.Encode()
		nextCursor = &c
	}

	writeJSON(w, r, ItemsResponse{Items: items, NextCursor: nextCursor})
}

// GetRuns returns the most recent run outcomes, optionally for one source.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, r.URL.Query().Get("limit"), 50)
	if !ok {
		return
	}

	runs, err := h.repo.FetchRuns(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error fetching run outcomes")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, RunsResponse{Runs: runs})
}

// GetStats returns collection statistics for the last 'days' days (default 7).
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if s := r.URL.Query().Get("days"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d <= 0 || d > 365 {
			hlog.FromRequest(r).Warn().Str("days", s).Msg("Invalid 'days' parameter value")
			http.Error(w, "Invalid 'days' parameter: must be between 1 and 365", http.StatusBadRequest)
			return
		}
		days = d
	}

	stats, err := h.repo.FetchStats(r.Context(), days)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error computing stats")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, stats)
}

func parseLimit(w http.ResponseWriter, r *http.Request, s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 || limit > maxLimit {
		hlog.FromRequest(r).Warn().Err(err).Str("limit", s).Msg("Invalid 'limit' parameter value")
		http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
		// Cannot reliably send a different status code here.
	}
	log.Debug().Int("bytes_written", len(jsonBytes)).Msg("Response completed")
}
