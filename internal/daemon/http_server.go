package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	ferrors "github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/metrics"
)

// httpServer serves /metrics and /healthz.
type httpServer struct {
	server   *http.Server
	listener net.Listener
}

// registerRuntimeCollectors adds Go runtime and process metrics to reg.
// Registering twice is tolerated.
func registerRuntimeCollectors(reg *prom.Registry) {
	for _, c := range []prom.Collector{
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var already prom.AlreadyRegisteredError
			if !errors.As(err, &already) {
				slog.Warn("Failed to register collector", logfields.Error(err))
			}
		}
	}
}

// newHTTPServer binds addr right away so a port conflict fails startup.
func (d *Daemon) newHTTPServer(addr string) (*httpServer, error) {
	reg := d.opts.Registry
	if reg == nil {
		reg = prom.NewRegistry()
	}
	registerRuntimeCollectors(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	mux.HandleFunc("/healthz", d.HealthHandler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ferrors.DaemonError("failed to listen for metrics").
			WithCause(err).
			WithContext("addr", addr).
			Build()
	}
	return &httpServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

func (s *httpServer) Addr() string { return s.listener.Addr().String() }

func (s *httpServer) serve() {
	slog.Info("Serving metrics and health", slog.String("addr", s.Addr()))
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", logfields.Error(err))
	}
}

func (s *httpServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("Metrics server shutdown failed", logfields.Error(err))
	}
}
