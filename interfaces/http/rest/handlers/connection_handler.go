package handlers

import (
	"encoding/json"
	"net/http"

	"eventgraph/application/services"
	"eventgraph/interfaces/http/rest/middleware"
	"eventgraph/pkg/utils"

	"go.uber.org/zap"
)

// ConnectionHandler handles the challenge/response connection protocol.
type ConnectionHandler struct {
	connections *services.ConnectionService
	logger      *zap.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connections *services.ConnectionService, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		logger:      logger,
	}
}

// ChallengeResponse represents the challenge presented to the asker
type ChallengeResponse struct {
	TargetID    string `json:"targetId"`
	TargetName  string `json:"targetName"`
	TargetColor string `json:"targetColor"`
	Question    string `json:"question"`
}

// GetChallenge handles GET /api/v1/challenge?target={attendeeID}
func (h *ConnectionHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.GetIdentity(r.Context())
	if err != nil {
		respondError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
		return
	}

	targetID := r.URL.Query().Get("target")
	if targetID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "target query parameter is required")
		return
	}

	challenge, err := h.connections.GetChallenge(r.Context(), claims.EventID, claims.AttendeeID, targetID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, ChallengeResponse{
		TargetID:    challenge.TargetID,
		TargetName:  challenge.TargetName,
		TargetColor: challenge.TargetColor,
		Question:    challenge.Question,
	})
}

// AnswerRequest represents the request body for submitting an answer
type AnswerRequest struct {
	TargetID string `json:"targetId" validate:"required"`
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

// AnswerResponse represents the response for a correct answer
type AnswerResponse struct {
	ConnectionID string `json:"connectionId"`
	Message      string `json:"message"`
}

// SubmitAnswer handles POST /api/v1/answer
func (h *ConnectionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.GetIdentity(r.Context())
	if err != nil {
		respondError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	connectionID, err := h.connections.SubmitAnswer(
		r.Context(), claims.EventID, claims.AttendeeID, req.TargetID, req.Question, req.Answer,
	)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, AnswerResponse{
		ConnectionID: connectionID,
		Message:      "Connection formed",
	})
}
