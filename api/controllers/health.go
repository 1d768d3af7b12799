package controllers

import (
	"context"
	"net/http"

	"github.com/shoptrace/shoptrace-api/api/responses"
	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
)

// Pinger is the health probe contract the store and cache clients satisfy.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health, aggregating store and cache probes. Both must
// pass for a 200.
func Health(cfg *config.Config, logg *logger.Logger, store, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true

		if err := probe(ctx, store); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if err := probe(ctx, cache); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}

		status := http.StatusOK
		body := healthResponse{Status: "ok", Checks: checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			body.Status = "degraded"
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"checks": checks}), "health check degraded")
			}
		}

		w.Header().Set("X-App-Env", cfg.App.Env)
		responses.WriteSuccessStatus(w, status, body)
	}
}

func probe(ctx context.Context, p Pinger) error {
	if p == nil {
		return errNotConfigured
	}
	return p.Ping(ctx)
}

type notConfiguredError struct{}

func (notConfiguredError) Error() string { return "not configured" }

var errNotConfigured = notConfiguredError{}
