// Package server: Prometheus metrics exposure and verification counters.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter for verifications by outcome; kind is empty on success.
	verificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserid_verifications_total",
			Help: "Total number of verifications, by result and failure kind.",
		},
		[]string{"result", "kind"},
	)
)

// metricsHandler exposes Prometheus metrics through the main HTTP server:
// request count and duration from the middleware, verification outcomes,
// support document fetch counters from the resolver, and Go runtime metrics.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NewMetricsHandler creates a standalone handler for a separate metrics
// listener, keeping scrape traffic off the application port.
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}
