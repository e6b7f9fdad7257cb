package http

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus scrape endpoint and hub counters
type MetricsHandler struct {
	prometheus http.Handler
	hub        HubStats
}

// NewMetricsHandler creates a metrics handler. A nil prometheus handler
// falls back to the default registry; hub may be nil.
func NewMetricsHandler(prometheus http.Handler, hub HubStats) *MetricsHandler {
	if prometheus == nil {
		prometheus = promhttp.Handler()
	}
	return &MetricsHandler{prometheus: prometheus, hub: hub}
}

// Prometheus handles GET /metrics
func (h *MetricsHandler) Prometheus(w http.ResponseWriter, r *http.Request) {
	h.prometheus.ServeHTTP(w, r)
}

// WebSocketStats handles GET /api/metrics/websocket
func (h *MetricsHandler) WebSocketStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		render.JSON(w, r, map[string]int64{})
		return
	}
	render.JSON(w, r, h.hub.Stats())
}
