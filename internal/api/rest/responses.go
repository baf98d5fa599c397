package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. AppError carries its own
// status; anything else is an internal error and its detail stays out of the
// response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status := appErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorResponse{Error: errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
		}})
		if status >= 500 {
			h.logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
		}
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}})
}
