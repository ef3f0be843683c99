package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/sloguard/internal/console/handler"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router   *chi.Mux
	logger   *zap.Logger
	gatherer prometheus.Gatherer

	// Проверка токенов операторов (RS256). nil — снятие алертов без авторизации (dev)
	authValidator auth.TokenValidator
	ingestKeys    *auth.KeyRing

	// Обработчики
	statusHandler *handler.StatusHandler // /v1/status
	alertHandler  *handler.AlertHandler  // /v1/alerts
	ingestHandler *handler.IngestHandler // /v1/measurements
}

// NewConsoleServer инициализирует HTTP API со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	validator auth.TokenValidator,
	keys *auth.KeyRing,
	statusH *handler.StatusHandler,
	alertH *handler.AlertHandler,
	ingestH *handler.IngestHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		gatherer:      gatherer,
		authValidator: validator,
		ingestKeys:    keys,
		statusHandler: statusH,
		alertHandler:  alertH,
		ingestHandler: ingestH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/status", func(r chi.Router) {
		r.Get("/", s.statusHandler.List)
		r.Get("/ws", s.statusHandler.Stream) // live-стрим статусов
		r.Get("/{series}", s.statusHandler.Get)
	})
	r.Get("/v1/alerts", s.alertHandler.List)

	// --- 3. Ingestion (ключ сервиса-источника) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIngestKey(s.ingestKeys, s.logger))
		r.Post("/v1/measurements/{series}", s.ingestHandler.Record)
	})

	// --- 4. Действия оператора (RS256 токен со scope alerts.resolve) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.RequireScope(s.authValidator, domain.ScopeResolveAlerts, s.logger))
		}
		r.Post("/v1/alerts/{id}/resolve", s.alertHandler.Resolve)
	})
}

// accessLog — аналог middleware.Logger, но в zap
func (s *ConsoleServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
