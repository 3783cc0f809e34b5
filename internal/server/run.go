package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fnhost/fnhost/internal/config"
	"github.com/fnhost/fnhost/internal/ingress"
	"github.com/fnhost/fnhost/internal/logging"
	"github.com/fnhost/fnhost/pkg/dispatcher"
	"github.com/fnhost/fnhost/pkg/registry"
)

const runLogPrefix = "server:run"

// Run loads configuration, builds the registry and every transport, then
// blocks until a shutdown signal and tears down in reverse order. Any startup
// error aborts the launch before the RPC listener accepts a single call.
func Run(configPath string, resolver registry.Resolver) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - starting %s", runLogPrefix, cfg.Name))

	// The registry must be complete before any transport exists.
	reg, err := registry.Load(cfg.Functions, resolver)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - loaded %d functions: %v", runLogPrefix, reg.Len(), reg.Names()))

	disp := dispatcher.NewDispatcher(reg)

	srv, err := New(cfg.Server, disp)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	var httpServer *http.Server
	if cfg.HTTP.Address != "" {
		httpServer = newHTTPServer(cfg.HTTP.Address, reg, srv)
	}

	var ing *ingress.Ingress
	if cfg.Broker.URL != "" {
		ing, err = ingress.Start(cfg.Broker, cfg.Name, reg.Names(), disp)
		if err != nil {
			srv.Stop(cfg.Server.Grace())
			return err
		}
	}

	slog.Info(fmt.Sprintf("%s - %s is ready on %s", runLogPrefix, cfg.Name, srv.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - received signal %s, shutting down", runLogPrefix, sig))

	if ing != nil {
		ing.Close()
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpServer.Shutdown(ctx)
		cancel()
	}
	srv.Stop(cfg.Server.Grace())

	slog.Info(fmt.Sprintf("%s - shutdown complete", runLogPrefix))
	return nil
}
