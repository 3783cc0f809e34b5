// Package server owns the RPC listener lifecycle: bind, bounded concurrency,
// TLS, and graceful start/stop sequencing.
package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/fnhost/fnhost/internal/config"
	"github.com/fnhost/fnhost/pkg/api"
	"github.com/fnhost/fnhost/pkg/dispatcher"
)

const logPrefix = "server:server"

// State is the lifecycle position. Transitions are linear, no re-entry:
// Unstarted -> Running -> Stopping -> Stopped.
type State int32

const (
	StateUnstarted State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server binds the configured address and serves the function RPC surface.
// It is constructed over an already-loaded dispatcher, so no call can be
// accepted before every handler is registered.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	lis        net.Listener

	mu    sync.Mutex
	state State
}

// New builds the server from configuration. TLS material errors surface here,
// before Running is ever entered.
func New(cfg config.ServerConfig, disp *dispatcher.Dispatcher) (*Server, error) {
	maxMsg := cfg.Message.Length.Max
	if maxMsg <= 0 {
		maxMsg = config.DefaultMaxMessageBytes
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
	}
	if cfg.Workers.Max > 0 {
		opts = append(opts, grpc.NumStreamWorkers(uint32(cfg.Workers.Max)))
	}
	if cfg.Concurrent.Max > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.Concurrent.Max)))
	}

	if cfg.Key != "" && cfg.Cert != "" {
		creds, err := serverCredentials(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s - load TLS material: %w", logPrefix, err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	gs := grpc.NewServer(opts...)
	api.RegisterFunctionServer(gs, &functionService{disp: disp})

	return &Server{cfg: cfg, grpcServer: gs, state: StateUnstarted}, nil
}

func serverCredentials(cfg config.ServerConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
	if err != nil {
		return nil, err
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	// A configured CA turns on client-certificate verification.
	if cfg.CA != "" {
		caPEM, err := os.ReadFile(cfg.CA)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.CA)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return credentials.NewTLS(tlsCfg), nil
}

// Start binds the address and begins accepting calls. A bind failure is fatal
// and leaves the server out of Running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnstarted {
		return fmt.Errorf("%s - start from state %s", logPrefix, s.state)
	}

	lis, err := listen(s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%s - bind %s: %w", logPrefix, s.cfg.Address, err)
	}
	s.lis = lis
	s.state = StateRunning

	slog.Info(fmt.Sprintf("%s - serving on %s", logPrefix, lis.Addr()))
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			slog.Error(fmt.Sprintf("%s - serve: %v", logPrefix, err))
		}
	}()
	return nil
}

func listen(address string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return net.Listen("unix", strings.TrimPrefix(address, "unix://"))
	case strings.HasPrefix(address, "tcp://"):
		return net.Listen("tcp", strings.TrimPrefix(address, "tcp://"))
	default:
		return net.Listen("tcp", address)
	}
}

// Addr returns the bound listener address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop stops accepting new calls and waits for in-flight calls to finish, up
// to grace (indefinitely when nil), then terminates the rest. Calling Stop
// again is a no-op.
func (s *Server) Stop(grace *time.Duration) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - stopping, grace=%v", logPrefix, grace))
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	if grace == nil {
		<-done
	} else {
		select {
		case <-done:
		case <-time.After(*grace):
			slog.Warn(fmt.Sprintf("%s - grace period elapsed, terminating in-flight calls", logPrefix))
			s.grpcServer.Stop()
			<-done
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - stopped", logPrefix))
}
