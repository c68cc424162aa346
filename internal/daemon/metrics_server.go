package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	m "git.home.luguber.info/inful/continuousdoc/internal/metrics"
)

// MetricsPath is where the Prometheus handler is mounted.
const MetricsPath = "/metrics"

type metricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// registerRuntimeCollectors adds Go runtime and process collectors once per registry.
func registerRuntimeCollectors(reg *prom.Registry) {
	for _, c := range []prom.Collector{
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prom.AlreadyRegisteredError
			if !errors.As(err, &are) {
				slog.Debug("Skipping collector", logfields.Error(err))
			}
		}
	}
}

func startMetricsServer(addr string, reg *prom.Registry, logger *slog.Logger) (*metricsServer, error) {
	if reg != nil {
		registerRuntimeCollectors(reg)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, m.HTTPHandler(reg))
	s := &metricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	logger.Info("Serving metrics", slog.String("addr", s.Addr()), logfields.Path(MetricsPath))
	return s, nil
}

func (s *metricsServer) Addr() string {
	if s == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop is a no-op on a nil server.
func (s *metricsServer) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop metrics server", logfields.Error(err))
	}
}
