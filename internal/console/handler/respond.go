package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/sloguard/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError разделяет типы ошибок: 404, 400, 409, 500
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownSeries),
		errors.Is(err, domain.ErrNoData),
		errors.Is(err, domain.ErrAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCounters),
		errors.Is(err, domain.ErrOutOfOrder):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrIngestDisabled):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
