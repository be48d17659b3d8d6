// Package diag serves the diagnostics endpoints of a running engine.
//
// Routes:
//   - GET    /healthz            - liveness
//   - GET    /stats              - engine.Stats as JSON
//   - GET    /entries?locator=   - one entry snapshot
//   - DELETE /entries?locator=   - purge one entry
//   - GET    /metrics            - Prometheus exposition
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/imgprefetch/engine"
)

const shutdownTimeout = 5 * time.Second

// NewRouter builds the diagnostics handler. A nil gatherer disables /metrics.
func NewRouter(e engine.Engine, g prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	h := handlers{e: e}
	r.Get("/healthz", h.health)
	r.Get("/stats", h.stats)
	r.Get("/entries", h.entry)
	r.Delete("/entries", h.purge)
	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r
}

// Serve runs h on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, h, logger)
}

func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("diagnostics listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handlers struct{ e engine.Engine }

func (h handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.e.CacheStats())
}

func (h handlers) entry(w http.ResponseWriter, r *http.Request) {
	loc := r.URL.Query().Get("locator")
	if loc == "" {
		writeError(w, http.StatusBadRequest, "locator is required")
		return
	}
	snap, ok := h.e.Get(loc)
	if !ok {
		writeError(w, http.StatusNotFound, "no entry")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h handlers) purge(w http.ResponseWriter, r *http.Request) {
	loc := r.URL.Query().Get("locator")
	if loc == "" {
		writeError(w, http.StatusBadRequest, "locator is required")
		return
	}
	if !h.e.PurgeFromCache(loc) {
		writeError(w, http.StatusNotFound, "no entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("diagnostics request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
