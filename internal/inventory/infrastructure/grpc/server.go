package grpc

import (
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "book-inventory-service"

// Server exposes grpc_health_v1 for orchestrators. It reports NOT_SERVING
// until the event consumer is up.
type Server struct {
	log    *slog.Logger
	gs     *grpc.Server
	health *health.Server
}

func NewServer(log *slog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{log: log, gs: gs, health: hs}
}

func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Run listens on addr and serves in the background.
func Run(addr string, srv *Server) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			srv.log.Error("grpc serve failed", "addr", addr, "err", err)
		}
	}()
	srv.log.Info("grpc health listening", "addr", lis.Addr().String())
	return lis.Addr(), nil
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.gs.GracefulStop()
}
