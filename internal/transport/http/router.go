// Package httptransport assembles the public API surface: domain handlers
// plus the operational endpoints every deployment expects.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zonegate/internal/transport/http/shared"
)

// Registrar is anything that can attach its routes to the router. Both
// domain handlers implement it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter builds the root router: health and metrics endpoints unauthenticated,
// everything else mounted by the handlers themselves.
func NewRouter(checks map[string]HealthChecker, handlers ...Registrar) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ready"}
		for name, check := range checks {
			if err := check.Health(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				body["status"] = "degraded"
			}
		}
		shared.WriteJSON(w, status, body)
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
