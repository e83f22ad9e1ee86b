package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "eventgraph/pkg/errors"

	"go.uber.org/zap"
)

// errorBody is the uniform error payload.
type errorBody struct {
	Error   bool                   `json:"error"`
	Message string                 `json:"message"`
	Code    int                    `json:"code"`
	Type    string                 `json:"type,omitempty"`
	ErrCode string                 `json:"errorCode,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondJSON(w, logger, status, errorBody{
		Error:   true,
		Message: message,
		Code:    status,
	})
}

// respondAppError maps an application error onto the HTTP surface. Internal
// details are logged, not exposed.
func respondAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		logger.Error("Unhandled error", zap.Error(err))
		respondError(w, logger, http.StatusInternalServerError, "internal server error")
		return
	}

	status := appErr.HTTPStatus
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		logger.Error("Internal error", zap.Error(appErr))
		message = "internal server error"
	}

	respondJSON(w, logger, status, errorBody{
		Error:   true,
		Message: message,
		Code:    status,
		Type:    string(appErr.Type),
		ErrCode: appErr.Code,
		Details: appErr.Details,
	})
}
