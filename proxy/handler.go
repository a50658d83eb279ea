package proxy

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// Cleanup forgets every client once the table grows past max entries.
func (rl *RateLimiter) Cleanup(max int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > max {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// Handler serves GET /api/image-proxy?url=<urlencoded>.
type Handler struct {
	fetcher *Fetcher
	limiter *RateLimiter
	logger  *slog.Logger
	maxAge  time.Duration
}

// NewHandler creates the proxy endpoint. limiter may be nil.
func NewHandler(f *Fetcher, limiter *RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxAge := f.cfg.CacheTTL
	if maxAge < 0 {
		maxAge = 0
	}
	return &Handler{fetcher: f, limiter: limiter, logger: logger, maxAge: maxAge}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.limiter.Allow(clientKey(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	e, cached, err := h.fetcher.Fetch(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		status := StatusFor(err)
		h.logger.Warn("image proxy failed", "url", r.URL.Query().Get("url"), "status", status, "err", err)
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Data)))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.maxAge.Seconds())))
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(e.Data)
	}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
