// Package httptransport assembles the public router: platform middleware,
// operational endpoints, and the authenticated API surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditHandler "aegis/internal/audit/handler"
	checklistHandler "aegis/internal/checklist/handler"
	healthHandler "aegis/internal/health/handler"
	"aegis/internal/platform/metrics"
	"aegis/internal/platform/middleware"
	"aegis/pkg/platform/httputil"
)

// Deps are the wired handlers and cross-cutting collaborators the router
// mounts.
type Deps struct {
	Checklist *checklistHandler.Handler
	Audit     *auditHandler.Handler
	Health    *healthHandler.Handler
	Validator middleware.TokenValidator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Checks are named dependency pings reported by /healthz. Absent
	// dependencies (in-memory mode) simply register no check.
	Checks map[string]func(context.Context) error
}

// NewRouter wires all endpoints. Operational routes stay unauthenticated;
// everything under /api/v1 requires a bearer token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(deps.Checks))
		for name, check := range deps.Checks {
			if err := check(ctx); err != nil {
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(results) > 0 {
			body["dependencies"] = results
		}
		httputil.WriteJSON(w, status, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		deps.Checklist.Register(r)
		deps.Audit.Register(r)
		deps.Health.Register(r)
	})

	return r
}
