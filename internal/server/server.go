// ABOUTME: Hosts one portal service: a gRPC server plus HTTP health endpoints
// ABOUTME: Bounded worker pool, interceptor chain, optional tailnet listeners, graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/config"
	"github.com/2389/portal-core/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// Options describes one service host.
type Options struct {
	Name     string
	GRPCAddr string
	HTTPAddr string // empty disables the health endpoints
	Tuning   config.ServerConfig

	Validator     auth.Validator
	PublicMethods []string

	// Ready backs /health/ready, typically a store ping.
	Ready func(ctx context.Context) error

	Tailnet *Tailnet
	Logger  *slog.Logger
}

// Server runs a gRPC server and its health endpoints until shut down.
type Server struct {
	opts       Options
	logger     *slog.Logger
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New builds the gRPC server with the standard interceptor chain. Services
// are registered on Registrar before Run.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server", "service", opts.Name)

	s := &Server{opts: opts, logger: logger}

	grpcOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			rpc.DeadlineInterceptor(opts.Tuning.RequestTimeout),
			rpc.RecoveryInterceptor(logger),
			auth.UnaryInterceptor(opts.Validator, logger, append([]string{healthpb.Health_Check_FullMethodName}, opts.PublicMethods...)...),
			rpc.ValidationInterceptor(),
		),
	}
	if opts.Tuning.MaxConcurrentStreams > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxConcurrentStreams(opts.Tuning.MaxConcurrentStreams))
	}
	if opts.Tuning.Workers > 0 {
		grpcOpts = append(grpcOpts, grpc.NumStreamWorkers(opts.Tuning.Workers))
	}
	s.grpcServer = grpc.NewServer(grpcOpts...)

	// Standard gRPC health checking, keyed by service name.
	s.health = health.NewServer()
	s.health.SetServingStatus(opts.Name, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Registrar is where services attach their descriptors.
func (s *Server) Registrar() grpc.ServiceRegistrar {
	return s.grpcServer
}

// OnShutdown registers c to be closed after the servers stop.
func (s *Server) OnShutdown(name string, c io.Closer) {
	s.closers = append(s.closers, namedCloser{name: name, c: c})
}

// setupListeners creates listeners on the tailnet when one is configured,
// otherwise on TCP. httpLn is nil when health endpoints are disabled.
func (s *Server) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	listen := func(addr string) (net.Listener, error) {
		return net.Listen("tcp", addr)
	}
	if s.opts.Tailnet != nil {
		listen = s.opts.Tailnet.Listen
	}

	grpcLn, err = listen(s.opts.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	if s.opts.HTTPAddr == "" {
		return grpcLn, nil, nil
	}
	httpLn, err = listen(s.opts.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// Run listens on the configured addresses and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners()
	if err != nil {
		return err
	}
	return s.Serve(ctx, grpcLn, httpLn)
}

// Serve runs on the given listeners. httpLn may be nil.
func (s *Server) Serve(ctx context.Context, grpcLn, httpLn net.Listener) error {
	errCh := s.startServers(grpcLn, httpLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	if httpLn != nil {
		go func() {
			s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
			if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		select {
		case additionalErr := <-errCh:
			s.logger.Error("additional server error", "error", additionalErr)
		default:
		}
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (s *Server) gracefulShutdown() error {
	timeout := s.opts.Tuning.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// Shutdown stops both servers and closes registered resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	s.health.Shutdown()
	s.shutdownGRPCServer(ctx)

	for _, nc := range s.closers {
		if err := nc.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", nc.name, err))
		}
	}
	s.closers = nil

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the service's dependencies answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", s.opts.Name)
}
