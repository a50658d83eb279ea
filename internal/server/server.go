// Package server exposes the phrames engine over HTTP: the campaign page
// bindings, the composite download endpoint, live WebSocket editing
// sessions and the image proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/internal/config"
	"github.com/saadchadu/phrames/proxy"
	"github.com/saadchadu/phrames/store"
)

// Deps are the collaborators the server is built from.
type Deps struct {
	Store store.Store

	// Counters receives download increments. Nil uses Store.
	Counters store.Counters

	// Fetcher backs the image proxy and the first frame source of
	// server-side exports.
	Fetcher *proxy.Fetcher

	// Limiter rate-limits the image proxy. Optional.
	Limiter *proxy.RateLimiter

	// Direct loads frames straight from storage when the proxy fails.
	// Nil uses an http.Client bounded by the export timeout.
	Direct phrames.FrameSource

	Logger *slog.Logger
}

// Server is the phrames HTTP service.
type Server struct {
	cfg      *config.Config
	store    store.Store
	counters store.Counters
	fetcher  *proxy.Fetcher
	sources  []phrames.FrameSource
	exporter *phrames.Exporter
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
	now      func() time.Time
}

// New wires a server. It does not start listening.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("server: fetcher is required")
	}
	if deps.Counters == nil {
		deps.Counters = deps.Store
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Direct == nil {
		deps.Direct = &phrames.DirectSource{Client: &http.Client{Timeout: cfg.Export.Timeout}}
	}

	previewInterp, exportInterp := cfg.Export.Interpolation()
	sources := []phrames.FrameSource{deps.Fetcher.FrameSource(), deps.Direct}

	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		counters: deps.Counters,
		fetcher:  deps.Fetcher,
		sources:  sources,
		exporter: phrames.NewExporter(phrames.NewCompositor(previewInterp, exportInterp), phrames.ExporterConfig{
			Sources:  sources,
			Counters: deps.Counters,
			Timeout:  cfg.Export.Timeout,
		}),
		logger: deps.Logger,
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes(proxy.NewHandler(deps.Fetcher, deps.Limiter, deps.Logger))
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("phrames listening", "addr", srv.Addr, "base_url", s.cfg.Server.BaseURL)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.exporter.Wait()
	return nil
}

// engineOptions configures the engine of one live session.
func (s *Server) engineOptions(onPreview func(*phrames.Surface, phrames.Transform)) []phrames.Option {
	previewInterp, exportInterp := s.cfg.Export.Interpolation()
	return []phrames.Option{
		phrames.WithFrameClock(phrames.NewTimerClock(s.cfg.Export.FrameInterval)),
		phrames.WithInterpolation(previewInterp, exportInterp),
		phrames.WithFrameSources(s.sources...),
		phrames.WithCounters(s.counters),
		phrames.WithExportTimeout(s.cfg.Export.Timeout),
		phrames.WithNow(s.now),
		phrames.WithPreviewHandler(onPreview),
	}
}
