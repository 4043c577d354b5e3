package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"driftwatch/crawler/internal/models"
	"driftwatch/crawler/internal/server/pagination"
	"driftwatch/crawler/internal/storage"
)

const defaultLimit = 100
const maxLimit = 1000

// Pipeline is the slice of the crawl loop the API needs: read the last
// report and request an out-of-schedule cycle.
type Pipeline interface {
	LastReport() *models.CycleReport
	TriggerNow() bool
}

// ItemsResponse is the paginated payload for the items endpoint.
type ItemsResponse struct {
	Items      []models.Item `json:"items"`
	NextCursor *string       `json:"next_cursor,omitempty"`
}

// Handler serves the read API over the pipeline's durable state.
type Handler struct {
	repo     *storage.Repository
	pipeline Pipeline
}

func NewHandler(repo *storage.Repository, pipeline Pipeline) *Handler {
	return &Handler{repo: repo, pipeline: pipeline}
}

// GetItems returns accepted items newest-first with cursor pagination.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			log.Warn().Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var beforeID *int64
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		id, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		beforeID = &id
	}

	// Fetch one extra row to learn whether a next page exists.
	items, err := h.repo.FetchItems(r.Context(), limit+1, beforeID)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching items from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursor *string
	if len(items) > limit {
		items = items[:limit]
		cursor := pagination.EncodeCursor(items[len(items)-1].ID)
		nextCursor = &cursor
	}

	writeJSON(w, r, http.StatusOK, ItemsResponse{Items: items, NextCursor: nextCursor})
}

// GetReport returns the most recent cycle report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report := h.pipeline.LastReport()
	if report == nil {
		http.Error(w, "No cycle has completed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// TriggerCycle requests an immediate crawl cycle. The cycle runs
// asynchronously; 202 means queued, not finished.
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	if !h.pipeline.TriggerNow() {
		log.Info().Msg("Manual cycle rejected, one already queued")
		http.Error(w, "A manual cycle is already queued", http.StatusConflict)
		return
	}

	log.Info().Msg("Manual cycle queued")
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response body")
	}
}
