// Package api wires the HTTP surface: a health probe and the Prometheus
// metrics endpoint.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patientcore/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router.
func SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(metrics.Middleware)

	r.HandleFunc("/api/health", HealthHandler).Methods("GET")

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}
