package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"eventgraph/application/services"
	domainServices "eventgraph/domain/services"
	"eventgraph/interfaces/http/rest/middleware"
	"eventgraph/pkg/utils"

	"go.uber.org/zap"
)

// RegistrationHandler handles attendee registration and identity requests.
type RegistrationHandler struct {
	registry      *services.RegistryService
	questions     *domainServices.QuestionBank
	questionCount int
	logger        *zap.Logger
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(
	registry *services.RegistryService,
	questions *domainServices.QuestionBank,
	questionCount int,
	logger *zap.Logger,
) *RegistrationHandler {
	return &RegistrationHandler{
		registry:      registry,
		questions:     questions,
		questionCount: questionCount,
		logger:        logger,
	}
}

// RegisterRequest represents the request body for registering an attendee
type RegisterRequest struct {
	EventID      string            `json:"eventId" validate:"required,min=1,max=128"`
	DisplayName  string            `json:"displayName" validate:"required,min=1,max=64"`
	Color        string            `json:"color" validate:"omitempty,hexcolor"`
	ChallengeSet map[string]string `json:"challengeSet" validate:"required,min=1"`
}

// RegisterResponse represents the response for registering an attendee
type RegisterResponse struct {
	AttendeeID string `json:"attendeeId"`
	Token      string `json:"token"`
}

// Register handles POST /api/v1/register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	result, err := h.registry.Register(r.Context(), req.EventID, req.DisplayName, req.Color, req.ChallengeSet)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, RegisterResponse{
		AttendeeID: result.AttendeeID,
		Token:      result.Token,
	})
}

// QuestionsResponse represents the response for the question catalog draw
type QuestionsResponse struct {
	Questions []string `json:"questions"`
}

// Questions handles GET /api/v1/questions. It draws a random subset of the
// catalog for the registration form; repeated calls redraw.
func (h *RegistrationHandler) Questions(w http.ResponseWriter, r *http.Request) {
	count := h.questionCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, h.logger, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = parsed
	}

	exclude := r.URL.Query()["exclude"]

	respondJSON(w, h.logger, http.StatusOK, QuestionsResponse{
		Questions: h.questions.PickQuestions(count, exclude),
	})
}

// WhoAmIResponse represents the claim-resolved identity
type WhoAmIResponse struct {
	AttendeeID  string `json:"attendeeId"`
	EventID     string `json:"eventId"`
	DisplayName string `json:"displayName"`
}

// WhoAmI handles GET /api/v1/whoami
func (h *RegistrationHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.GetIdentity(r.Context())
	if err != nil {
		respondError(w, h.logger, http.StatusUnauthorized, "Unauthorized")
		return
	}

	identity, err := h.registry.WhoAmI(r.Context(), claims.EventID, claims.AttendeeID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, WhoAmIResponse{
		AttendeeID:  identity.AttendeeID,
		EventID:     identity.EventID,
		DisplayName: identity.DisplayName,
	})
}
