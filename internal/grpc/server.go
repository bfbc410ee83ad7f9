package grpc

import (
	"errors"
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"chat-realtime/internal/observability"
)

// ServiceName is the health service name the realtime core reports under.
const ServiceName = "chat.realtime.v1.Realtime"

// Server is the internal gRPC endpoint of the service. It serves the standard
// health protocol so orchestrators can probe readiness.
type Server struct {
	grpc   *gogrpc.Server
	health *health.Server
}

func NewServer() *Server {
	srv := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: srv, health: hs}
}

// SetServing flips the reported health of the service.
func (s *Server) SetServing(serving bool) {
	state := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		state = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(ServiceName, state)
}

// Serve blocks until the listener fails or the server stops.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("grpc listening addr=%s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the service unhealthy and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
