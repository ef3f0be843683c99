package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sloguard/internal/domain"
)

// maxIngestBody — счетчики занимают пару сотен байт
const maxIngestBody = 4 << 10

type IngestHandler struct {
	service MonitorService
}

func NewIngestHandler(s MonitorService) *IngestHandler {
	return &IngestHandler{service: s}
}

// Record принимает счетчики запросов серии: {"total":1000,"success":998,"error":2,"slow":5}
func (h *IngestHandler) Record(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")

	var c domain.Counters
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidCounters, err))
		return
	}

	if err := h.service.RecordMeasurement(r.Context(), series, c); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
