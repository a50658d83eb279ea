package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/saadchadu/phrames/internal/metrics"
)

func (s *Server) routes(proxyHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Handle("/api/image-proxy", proxyHandler)

	// Both page components bind the same engine.
	r.Route("/c/{slug}", func(r chi.Router) {
		r.Get("/", s.handlePage(bindingShare))
		r.Get("/live", s.handleLive)
	})
	r.Route("/campaign/{slug}", func(r chi.Router) {
		r.Get("/", s.handlePage(bindingCampaign))
		r.Get("/live", s.handleLive)
	})

	r.Route("/api/campaigns/{slug}", func(r chi.Router) {
		r.Get("/", s.handleCampaign)
		r.Post("/composite", s.handleComposite)
	})
	return r
}

// requestLogger logs one line per request with the chi request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
