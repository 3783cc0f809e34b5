package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fnhost/fnhost/pkg/registry"
)

const httpLogPrefix = "server:http"

// newHTTPServer builds the optional health/metrics sidecar.
func newHTTPServer(addr string, reg *registry.Registry, srv *Server) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := srv.State()
		w.Header().Set("Content-Type", "application/json")
		if state != StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": state.String()})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/functions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"functions": reg.Names()})
	})
	mux.Handle("/metrics", promhttp.Handler())

	hs := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - listening on %s", httpLogPrefix, addr))
		if err := hs.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - serve: %v", httpLogPrefix, err))
		}
	}()
	return hs
}
