package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/xela07ax/sloguard/internal/domain"
	"go.uber.org/zap"
)

const streamWriteTimeout = 5 * time.Second

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

type StatusHandler struct {
	service  MonitorService
	interval time.Duration
	logger   *zap.Logger
}

func NewStatusHandler(s MonitorService, streamInterval time.Duration, logger *zap.Logger) *StatusHandler {
	if streamInterval <= 0 {
		streamInterval = 5 * time.Second
	}
	return &StatusHandler{service: s, interval: streamInterval, logger: logger}
}

// StatusSnapshot — payload websocket-стрима
type StatusSnapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Series      []domain.StatusView  `json:"series"`
	Alerts      []domain.ActiveAlert `json:"alerts"`
}

func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetStatuses())
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetStatus(chi.URLParam(r, "series"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Stream пушит снимок статусов сразу после подключения и затем каждые interval
func (h *StatusHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if err := h.push(conn); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// читаем, только чтобы заметить закрытие соединения клиентом
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := h.push(conn); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *StatusHandler) push(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(StatusSnapshot{
		GeneratedAt: time.Now().UTC(),
		Series:      h.service.GetStatuses(),
		Alerts:      h.service.GetActiveAlerts(),
	})
}
