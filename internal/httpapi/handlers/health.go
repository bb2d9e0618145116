package handlers

import (
	"context"
	"net/http"
	"time"

	"scenegen/internal/httpkit"
)

// Health reports liveness; ?deep=true also probes the ledger and every
// configured dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "scenegen-api",
		"version": "0.1.0",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any, len(h.checks)+1)
	checks["ledger"] = probe(ctx, func(ctx context.Context) error {
		_, err := h.ledger.ListRuns(ctx, 1)
		return err
	})
	for name, ping := range h.checks {
		checks[name] = probe(ctx, ping)
	}
	return checks
}

func probe(ctx context.Context, ping Pinger) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
