package engine

import (
	"github.com/xela07ax/sloguard/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth публикует статус каждой серии как отдельный сервис grpc.health.v1.
// breach -> NOT_SERVING, warning и healthy -> SERVING. Пустое имя сервиса — сам процесс.
type GRPCHealth struct {
	srv *health.Server
}

func NewGRPCHealth() *GRPCHealth {
	return &GRPCHealth{srv: health.NewServer()}
}

func (h *GRPCHealth) SetSeriesStatus(series string, status domain.Status) {
	h.srv.SetServingStatus(series, servingStatus(status))
}

func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Shutdown переводит все сервисы в NOT_SERVING (graceful shutdown)
func (h *GRPCHealth) Shutdown() {
	h.srv.Shutdown()
}

// Server — для прямых вызовов Check в тестах и внутри процесса
func (h *GRPCHealth) Server() healthpb.HealthServer {
	return h.srv
}

func servingStatus(s domain.Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == domain.StatusBreach {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
