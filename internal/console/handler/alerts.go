package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sloguard/internal/infra/auth"
	"go.uber.org/zap"
)

type AlertHandler struct {
	service MonitorService
	logger  *zap.Logger
}

func NewAlertHandler(s MonitorService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{service: s, logger: logger}
}

// List — активные алерты, самые важные для бизнеса сверху
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetActiveAlerts())
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "alert id is required", http.StatusBadRequest)
		return
	}

	if err := h.service.ResolveAlert(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	operator := "anonymous"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		operator = claims.Subject
	}
	h.logger.Info("alert resolved via api", zap.String("alert_id", id), zap.String("operator", operator))
	w.WriteHeader(http.StatusNoContent)
}
