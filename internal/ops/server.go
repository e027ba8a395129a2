// Package ops serves the operational endpoints on a separate listener so
// health probes and metrics scrapes never compete with API traffic.
package ops

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/metrics"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

const readyTimeout = 2 * time.Second

// Server exposes /healthz, /readyz, /metrics and /system.
type Server struct {
	store   storage.Store
	log     *logging.Logger
	started time.Time
	version string
}

// New creates an ops Server.
func New(store storage.Store, log *logging.Logger, version string) *Server {
	return &Server{store: store, log: log, started: time.Now(), version: version}
}

// Router assembles the ops mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/system", s.handleSystem)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// handleHealth reports process liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports readiness to take traffic, gated on the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("readiness check failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// handleSystem reports host resource usage for dashboards that cannot scrape
// prometheus directly.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"version":    s.version,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	}

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		out["memory"] = map[string]interface{}{
			"total_bytes": vm.Total,
			"used_bytes":  vm.Used,
			"used_pct":    vm.UsedPercent,
		}
	}
	if pct, err := cpu.PercentWithContext(r.Context(), 0, false); err == nil && len(pct) > 0 {
		out["cpu_pct"] = pct[0]
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}
