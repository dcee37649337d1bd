// Package grpc hosts the gRPC listener. Every call passes through the
// access token interceptors, which enforce a per-method Policy; the
// standard health service is always registered.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address   string
	tokens    authz.Verifier
	policy    Policy
	logger    logging.Logger
	metrics   *metrics.Metrics
	registrar []func(grpc.ServiceRegistrar)
}

type Option func(*GRPCServer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *GRPCServer) { s.metrics = m }
}

// WithService registers additional services on the server before it starts.
// Their methods must appear in the Policy to be reachable.
func WithService(register func(grpc.ServiceRegistrar)) Option {
	return func(s *GRPCServer) { s.registrar = append(s.registrar, register) }
}

func NewGRPCServer(a string, l logging.Logger, tokens authz.Verifier, policy Policy, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		tokens:  tokens,
		policy:  policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	for _, register := range s.registrar {
		register(srv)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
