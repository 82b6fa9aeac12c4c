// SPDX-License-Identifier: MIT
// Read-only HTTP surface: /metrics for prometheus and /status for a JSON
// cluster listing. Grounded on the teacher's src/server/server.go
// (chi.Mux, go-chi/cors middleware, RequestID/Recoverer), trimmed from a
// full web application down to two observability endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apimgr/ha-coordinator/internal/coordinator"
)

// NodeLister is the capability /status depends on: the parent-side
// Client's synchronous GET_NODES round trip.
type NodeLister interface {
	GetNodes() ([]coordinator.NodeView, error)
}

// New builds the router. Callers wrap the returned handler in their own *http.Server so lifetime is owned by the
// caller, not this package.
func New(lister NodeLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", statusHandler(lister))

	return r
}

func statusHandler(lister NodeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes, err := lister.GetNodes()
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(nodes)
	}
}
