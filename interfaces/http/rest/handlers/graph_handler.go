package handlers

import (
	"net/http"
	"strconv"

	"eventgraph/application/services"

	"go.uber.org/zap"
)

const defaultTopK = 5

// GraphHandler serves the derived graph views consumed by displays.
type GraphHandler struct {
	graphs *services.GraphQueryService
	logger *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(graphs *services.GraphQueryService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		graphs: graphs,
		logger: logger,
	}
}

// GetGraph handles GET /api/v1/graph?event={eventID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "event query parameter is required")
		return
	}

	snapshot, err := h.graphs.LiveSnapshot(r.Context(), eventID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, snapshot)
}

// ReplayResponse wraps a replayed snapshot with its position in the history.
type ReplayResponse struct {
	Steps      int         `json:"steps"`
	TotalSteps int         `json:"totalSteps"`
	Snapshot   interface{} `json:"snapshot"`
}

// Replay handles GET /api/v1/graph/replay?event={eventID}&steps={n}. It
// rebuilds the graph as it stood after the first n connections; omitting
// steps replays the full history.
func (h *GraphHandler) Replay(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "event query parameter is required")
		return
	}

	total, err := h.graphs.ReplayLength(r.Context(), eventID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	steps := total
	if raw := r.URL.Query().Get("steps"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, h.logger, http.StatusBadRequest, "steps must be a non-negative integer")
			return
		}
		steps = parsed
	}

	snapshot, err := h.graphs.ReplayAt(r.Context(), eventID, steps)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	if steps > total {
		steps = total
	}

	respondJSON(w, h.logger, http.StatusOK, ReplayResponse{
		Steps:      steps,
		TotalSteps: total,
		Snapshot:   snapshot,
	})
}

// TopConnectors handles GET /api/v1/graph/top?event={eventID}&k={n}
func (h *GraphHandler) TopConnectors(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "event query parameter is required")
		return
	}

	k := defaultTopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, h.logger, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	entries, err := h.graphs.TopConnectors(r.Context(), eventID, k)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}
