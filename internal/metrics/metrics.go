// Package metrics holds the Prometheus collectors of the phrames service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phrames"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	proxyFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "fetches_total",
			Help:      "Image proxy requests by outcome.",
		},
		[]string{"outcome"},
	)

	proxyBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "upstream_bytes_total",
			Help:      "Bytes fetched from upstream image hosts.",
		},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exports_total",
			Help:      "Composite exports by result.",
		},
		[]string{"result"},
	)

	exportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "export_duration_seconds",
			Help:      "Duration of composite exports including frame loading.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "sessions",
			Help:      "Open live preview sessions.",
		},
	)

	previewFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "preview_frames_total",
			Help:      "Preview frames pushed to live sessions.",
		},
	)

	sweptCampaigns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "expired_campaigns_total",
			Help:      "Campaigns deactivated by the expiry sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		proxyFetches,
		proxyBytes,
		exports,
		exportDuration,
		liveSessions,
		previewFrames,
		sweptCampaigns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordProxyFetch counts one image proxy request. Outcomes are "hit",
// "miss" or an error class such as "too_large".
func RecordProxyFetch(outcome string, upstreamBytes int) {
	proxyFetches.WithLabelValues(outcome).Inc()
	if upstreamBytes > 0 {
		proxyBytes.Add(float64(upstreamBytes))
	}
}

// RecordExport records one composite export.
func RecordExport(success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "ok"
	}
	exports.WithLabelValues(result).Inc()
	exportDuration.Observe(duration.Seconds())
}

// SessionOpened and SessionClosed track live preview sessions.
func SessionOpened() { liveSessions.Inc() }

// SessionClosed marks a live session as finished.
func SessionClosed() { liveSessions.Dec() }

// RecordPreviewFrame counts a preview frame sent to a client.
func RecordPreviewFrame() { previewFrames.Inc() }

// RecordSweep counts campaigns deactivated by one expiry sweep.
func RecordSweep(n int) {
	if n > 0 {
		sweptCampaigns.Add(float64(n))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// canonicalPath collapses slugs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "c", "campaign":
		if len(parts) >= 3 && parts[2] == "live" {
			return "/" + parts[0] + "/:slug/live"
		}
		return "/" + parts[0] + "/:slug"
	case "api":
		if len(parts) >= 2 && parts[1] == "campaigns" {
			if len(parts) >= 4 {
				return "/api/campaigns/:slug/" + parts[3]
			}
			return "/api/campaigns/:slug"
		}
		if len(parts) >= 2 {
			return "/api/" + parts[1]
		}
	}
	return "/" + parts[0]
}
