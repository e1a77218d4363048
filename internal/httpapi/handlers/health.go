package handlers

import (
	"context"
	"net/http"
	"time"

	"vgate/internal/httpkit"
	"vgate/internal/queue"
)

// Health reports liveness and the configured queue. With ?deep=true it also
// pings backends that hold a connection.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": h.serviceName,
		"queue": map[string]any{
			"backend": h.queue.Backend(),
			"name":    h.queue.Queue(),
		},
	}

	if r.URL.Query().Get("deep") == "true" {
		check := h.checkQueue(ctx)
		health["checks"] = map[string]any{"queue": check}
		if check["status"] != "ok" {
			health["status"] = "degraded"
			log.Warn("health check degraded", "checks", check)
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkQueue(ctx context.Context) map[string]any {
	pinger, ok := h.queue.(queue.Pinger)
	if !ok {
		// Stateless HTTP backends have nothing to check without publishing.
		return map[string]any{"status": "ok", "check": "none"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pinger.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
